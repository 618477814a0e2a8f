package chat

import (
	"sync"
	"testing"

	"PPCollab/service/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noticeLog struct {
	mu  sync.Mutex
	got []PresenceNotice
}

func (l *noticeLog) add(n PresenceNotice) {
	l.mu.Lock()
	l.got = append(l.got, n)
	l.mu.Unlock()
}

func TestPresence_NotifiesOnlyOnTransitions(t *testing.T) {
	var log noticeLog
	p := NewPresence(log.add)
	u1 := auth.Identity{ID: "u1"}

	snap := p.RecordJoin(u1, "c1", "channel:a")
	require.Len(t, snap, 1)
	p.RecordJoin(u1, "c2", "channel:a")
	p.RecordJoin(u1, "c2", "channel:a")
	assert.Equal(t, 1, p.Count("channel:a"))
	require.Len(t, log.got, 1)
	assert.True(t, log.got[0].Joined)
	assert.Equal(t, "c1", log.got[0].ConnID)

	assert.False(t, p.RecordLeave(u1, "c1", "channel:a"))
	assert.Len(t, log.got, 1, "second connection still present")

	assert.True(t, p.RecordLeave(u1, "c2", "channel:a"))
	require.Len(t, log.got, 2)
	assert.False(t, log.got[1].Joined)
	assert.Equal(t, 0, p.Count("channel:a"))
}

func TestPresence_LeaveWhenAbsentIsNoop(t *testing.T) {
	var log noticeLog
	p := NewPresence(log.add)
	u1 := auth.Identity{ID: "u1"}

	assert.False(t, p.RecordLeave(u1, "c1", "channel:a"))
	p.RecordJoin(u1, "c1", "channel:a")
	assert.False(t, p.RecordLeave(u1, "other", "channel:a"))
	assert.Len(t, log.got, 1)
}

func TestPresence_SnapshotOrder(t *testing.T) {
	p := NewPresence(nil)
	p.RecordJoin(auth.Identity{ID: "b"}, "c1", "project:p")
	p.RecordJoin(auth.Identity{ID: "a"}, "c2", "project:p")

	snap := p.Snapshot("project:p")
	require.Len(t, snap, 2)
	for _, e := range snap {
		assert.Equal(t, "project:p", e.RoomID)
		assert.False(t, e.JoinedAt.IsZero())
	}
	assert.Empty(t, p.Snapshot("project:none"))
}

func TestPresence_NoticesKeepStateOrderAcrossConnections(t *testing.T) {
	var log noticeLog
	leaving := make(chan struct{})
	release := make(chan struct{})
	p := NewPresence(func(n PresenceNotice) {
		if !n.Joined {
			close(leaving)
			<-release
		}
		log.add(n)
	})
	u1 := auth.Identity{ID: "u1"}
	p.RecordJoin(u1, "c1", "channel:a")

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.RecordLeave(u1, "c1", "channel:a")
	}()
	<-leaving

	// 第二个标签页在 c1 的离开通知发出前加入
	snap := p.RecordJoin(u1, "c2", "channel:a")
	require.Len(t, snap, 1)
	close(release)
	<-done

	log.mu.Lock()
	defer log.mu.Unlock()
	joined := make([]bool, 0, len(log.got))
	for _, n := range log.got {
		joined = append(joined, n.Joined)
	}
	assert.Equal(t, []bool{true, false, true}, joined, "last delta must say u1 is present")
	assert.Equal(t, 1, p.Count("channel:a"))
}

func TestPresence_PanickingNotifyDoesNotStallRoom(t *testing.T) {
	var log noticeLog
	p := NewPresence(func(n PresenceNotice) {
		log.add(n)
		if n.Identity.ID == "boom" {
			panic("notify failed")
		}
	})
	p.RecordJoin(auth.Identity{ID: "boom"}, "c1", "channel:a")
	p.RecordJoin(auth.Identity{ID: "u2"}, "c2", "channel:a")
	assert.Len(t, log.got, 2)
}

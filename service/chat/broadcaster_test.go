package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"PPCollab/service/authz"
	"PPCollab/service/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_FailureIsIsolated(t *testing.T) {
	rs := NewRooms()
	ok1 := &recordSub{id: "ok1", user: "u1"}
	ok2 := &recordSub{id: "ok2", user: "u2"}
	bad := &brokenSub{id: "bad", user: "u3"}
	for _, s := range []Subscriber{ok1, bad, ok2} {
		rs.Join("channel:c1", s)
	}

	var mu sync.Mutex
	var dead []string
	done := make(chan struct{}, 1)
	m := metrics.New()
	b := NewBroadcaster(rs, nil, m, func(id string) {
		mu.Lock()
		dead = append(dead, id)
		mu.Unlock()
		done <- struct{}{}
	})

	room, _ := authz.ChannelRoom("c1")
	ev, err := NewSocketEvent(EventMessageNew, room, "u9", "elsewhere", map[string]string{"text": "x"})
	require.NoError(t, err)
	require.NoError(t, b.Publish(context.Background(), ev))

	assert.Equal(t, []EventType{EventMessageNew}, ok1.events(t))
	assert.Equal(t, []EventType{EventMessageNew}, ok2.events(t))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dead subscriber not reported")
	}
	mu.Lock()
	assert.Equal(t, []string{"bad"}, dead)
	mu.Unlock()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsPublished.WithLabelValues("message:new", "socket")))
}

func TestBroadcaster_ExcludesOriginConnOnlyForSocket(t *testing.T) {
	rs := NewRooms()
	self := &recordSub{id: "self", user: "u1"}
	other := &recordSub{id: "other", user: "u2"}
	rs.Join("project:p1", self)
	rs.Join("project:p1", other)
	b := NewBroadcaster(rs, nil, nil, nil)

	room, _ := authz.ProjectRoom("p1")
	ev, _ := NewSocketEvent(EventTaskCreated, room, "u1", "self", map[string]bool{"advisory": true})
	require.NoError(t, b.Publish(context.Background(), ev))
	assert.Empty(t, self.events(t))
	assert.Len(t, other.events(t), 1)

	ev.Origin = OriginREST
	require.NoError(t, b.Publish(context.Background(), ev))
	assert.Len(t, self.events(t), 1, "rest events reach the originator too")
	assert.Len(t, other.events(t), 2)
}

package chat

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"PPCollab/service/auth"

	"github.com/stretchr/testify/require"
)

type gotFrame struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
	AckID *int64          `json:"ackId"`
}

// frames 取出连接队列里已有的全部帧
func frames(t *testing.T, c *Conn) []gotFrame {
	t.Helper()
	var out []gotFrame
	for {
		select {
		case b := <-c.Outbox():
			var f gotFrame
			require.NoError(t, json.Unmarshal(b, &f))
			out = append(out, f)
		default:
			return out
		}
	}
}

func eventsOf(fs []gotFrame) []EventType {
	out := make([]EventType, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Event)
	}
	return out
}

func newTestConn(id, user string) *Conn {
	return NewConn(id, auth.Identity{ID: user, DisplayName: user}, "127.0.0.1", 16)
}

// brokenSub 永远投递失败
type brokenSub struct {
	id, user string
	mu       sync.Mutex
	tries    int
}

func (b *brokenSub) ID() string         { return b.id }
func (b *brokenSub) IdentityID() string { return b.user }

func (b *brokenSub) Deliver([]byte) error {
	b.mu.Lock()
	b.tries++
	b.mu.Unlock()
	return errors.New("socket gone")
}

// recordSub 记录收到的帧
type recordSub struct {
	id, user string
	mu       sync.Mutex
	got      [][]byte
}

func (r *recordSub) ID() string         { return r.id }
func (r *recordSub) IdentityID() string { return r.user }

func (r *recordSub) Deliver(b []byte) error {
	r.mu.Lock()
	r.got = append(r.got, b)
	r.mu.Unlock()
	return nil
}

func (r *recordSub) events(t *testing.T) []EventType {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.got))
	for _, b := range r.got {
		var f gotFrame
		require.NoError(t, json.Unmarshal(b, &f))
		out = append(out, f.Event)
	}
	return out
}

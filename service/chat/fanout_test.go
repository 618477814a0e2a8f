package chat

import (
	"context"
	"encoding/json"
	"testing"

	"PPCollab/service/authz"
	"PPCollab/service/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	rooms  *Rooms
	fanout *Fanout
	m      *metrics.Collectors
}

func newNode(id string) *node {
	rs := NewRooms()
	m := metrics.New()
	return &node{rooms: rs, m: m, fanout: NewFanout(NewBroadcaster(rs, nil, m, nil), id, nil, m)}
}

func TestFanout_CrossInstance(t *testing.T) {
	bus := NewMemoryBus()
	a, b := newNode("a"), newNode("b")
	a.fanout.Start(context.Background(), bus.Attach())
	b.fanout.Start(context.Background(), bus.Attach())
	assert.True(t, a.fanout.Multi())

	onA := &recordSub{id: "ca", user: "u1"}
	onB := &recordSub{id: "cb", user: "u2"}
	a.rooms.Join("channel:c1", onA)
	b.rooms.Join("channel:c1", onB)

	room, _ := authz.ChannelRoom("c1")
	ev, _ := NewSocketEvent(EventMessageNew, room, "u1", "ca", map[string]string{"text": "hi"})
	require.NoError(t, a.fanout.Publish(context.Background(), ev))

	assert.Empty(t, onA.events(t), "originator excluded")
	assert.Equal(t, []EventType{EventMessageNew}, onB.events(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.m.FanoutRelayed))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.m.FanoutDuplicates), "own echo dropped")
}

func TestFanout_DuplicateEnvelopeDeliveredOnce(t *testing.T) {
	n := newNode("b")
	sub := &recordSub{id: "cb", user: "u2"}
	n.rooms.Join("channel:c1", sub)

	room, _ := authz.ChannelRoom("c1")
	ev, _ := NewSocketEvent(EventMessageNew, room, "u1", "ca", map[string]string{"text": "hi"})
	payload, err := json.Marshal(envelope{Origin: "a", Event: ev})
	require.NoError(t, err)

	n.fanout.onRemote("channel:c1", payload)
	n.fanout.onRemote("channel:c1", payload)
	n.fanout.onRemote("channel:c1", []byte("garbage"))

	assert.Len(t, sub.events(t), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(n.m.FanoutDuplicates))
}

func TestFanout_BackboneDownFallsBackToLocal(t *testing.T) {
	bus := NewMemoryBus()
	bus.SetDown(true)
	n := newNode("a")
	n.fanout.Start(context.Background(), bus.Attach())
	assert.False(t, n.fanout.Multi())

	sub := &recordSub{id: "x", user: "u2"}
	n.rooms.Join("channel:c1", sub)
	room, _ := authz.ChannelRoom("c1")
	ev, _ := NewSocketEvent(EventMessageNew, room, "u1", "ca", nil)
	require.NoError(t, n.fanout.Publish(context.Background(), ev))
	assert.Len(t, sub.events(t), 1)

	n.fanout.Start(context.Background(), nil)
	assert.NoError(t, n.fanout.Close())
}

func TestFanout_PublishFailureAfterStartOnlyWarns(t *testing.T) {
	bus := NewMemoryBus()
	a, b := newNode("a"), newNode("b")
	a.fanout.Start(context.Background(), bus.Attach())
	b.fanout.Start(context.Background(), bus.Attach())

	local := &recordSub{id: "l", user: "u3"}
	remote := &recordSub{id: "r", user: "u2"}
	a.rooms.Join("channel:c1", local)
	b.rooms.Join("channel:c1", remote)

	bus.SetDown(true)
	room, _ := authz.ChannelRoom("c1")
	ev, _ := NewSocketEvent(EventMessageNew, room, "u1", "ca", nil)
	require.NoError(t, a.fanout.Publish(context.Background(), ev))
	assert.Len(t, local.events(t), 1)
	assert.Empty(t, remote.events(t))
}

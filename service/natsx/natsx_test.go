package natsx

import (
	"context"
	"errors"
	"testing"
	"time"

	"PPCollab/tools/errs"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNatsxChain_Order(t *testing.T) {
	var trace []string
	mw := func(name string) NatsxMiddleware {
		return func(next NatsxHandler) NatsxHandler {
			return func(ctx context.Context, msg NatsxMessage) error {
				trace = append(trace, name)
				return next(ctx, msg)
			}
		}
	}
	h := NatsxChain(func(context.Context, NatsxMessage) error {
		trace = append(trace, "handler")
		return nil
	}, mw("a"), mw("b"))

	assert.NoError(t, h(context.Background(), NatsxMessage{}))
	assert.Equal(t, []string{"a", "b", "handler"}, trace)
}

func TestRecoverMiddleware(t *testing.T) {
	h := NatsxChain(func(context.Context, NatsxMessage) error {
		panic("bad payload")
	}, RecoverMiddleware(zap.NewNop()))

	err := h(context.Background(), NatsxMessage{Subject: "collab.room.channel:a"})
	assert.Equal(t, errs.ServerInternalError, errs.Code(err))
}

func TestIdemMiddleware(t *testing.T) {
	calls := 0
	h := NatsxChain(func(context.Context, NatsxMessage) error {
		calls++
		return nil
	}, NatsxIdemMiddleware(NewMemIdem(16, time.Minute)))

	ctx := context.Background()
	_ = h(ctx, NatsxMessage{Header: map[string]string{HeaderMsgID: "a/1"}})
	_ = h(ctx, NatsxMessage{Header: map[string]string{HeaderMsgID: "a/1"}})
	_ = h(ctx, NatsxMessage{Header: map[string]string{HeaderMsgID: "b/1"}})
	_ = h(ctx, NatsxMessage{Subject: "s", Data: []byte("x")})
	_ = h(ctx, NatsxMessage{Subject: "s", Data: []byte("x ")})
	assert.Equal(t, 3, calls)
}

func TestLogMiddlewarePassesError(t *testing.T) {
	want := errors.New("boom")
	h := NatsxChain(func(context.Context, NatsxMessage) error { return want }, LogMiddleware(zap.NewNop(), time.Millisecond))
	assert.ErrorIs(t, h(context.Background(), NatsxMessage{}), want)
}

func TestRoomBackbone_Subjects(t *testing.T) {
	b := &RoomBackbone{prefix: DefaultSubjectPrefix}
	assert.Equal(t, "collab.room.project:p1", b.Subject("project:p1"))

	room, ok := b.Room("collab.room.channel:general")
	assert.True(t, ok)
	assert.Equal(t, "channel:general", room)

	_, ok = b.Room("other.channel:general")
	assert.False(t, ok)
	_, ok = b.Room("collab.room.")
	assert.False(t, ok)
}

func TestNewNatsxClient_NoServers(t *testing.T) {
	_, err := NewNatsxClient(NatsxConfig{})
	assert.Error(t, err)
}

func TestRoomMiddlewares_DropRedelivery(t *testing.T) {
	var rooms []string
	h := NatsxChain(func(_ context.Context, msg NatsxMessage) error {
		rooms = append(rooms, msg.Subject)
		return nil
	}, roomMiddlewares(zap.NewNop())...)

	ctx := context.Background()
	first := NatsxMessage{Subject: "collab.room.channel:a", Data: []byte(`{}`), Header: map[string]string{HeaderMsgID: "m1"}}
	assert.NoError(t, h(ctx, first))
	assert.NoError(t, h(ctx, first))
	assert.NoError(t, h(ctx, NatsxMessage{Subject: "collab.room.channel:a", Data: []byte(`{}`), Header: map[string]string{HeaderMsgID: "m2"}}))
	assert.Equal(t, []string{"collab.room.channel:a", "collab.room.channel:a"}, rooms)
}

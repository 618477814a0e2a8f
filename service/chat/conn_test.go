package chat

import (
	"testing"

	"PPCollab/tools/errs"

	"github.com/stretchr/testify/assert"
)

func TestConn_DeliverQueueFull(t *testing.T) {
	c := NewConn("c1", newTestConn("x", "u1").Identity(), "", 1)
	assert.NoError(t, c.Deliver([]byte("a")))
	err := c.Deliver([]byte("b"))
	assert.Equal(t, errs.DeliveryFailureError, errs.Code(err))
}

func TestConn_ShutdownOnce(t *testing.T) {
	c := newTestConn("c1", "u1")
	c.rooms["channel:a"] = struct{}{}

	rooms, first := c.shutdown(CloseIdle, "idle")
	assert.True(t, first)
	assert.Equal(t, []string{"channel:a"}, rooms)

	rooms, first = c.shutdown(4000, "again")
	assert.False(t, first)
	assert.Empty(t, rooms)

	code, text := c.CloseInfo()
	assert.Equal(t, CloseIdle, code)
	assert.Equal(t, "idle", text)
	assert.True(t, c.Closed())
	assert.Error(t, c.Deliver([]byte("late")))
}

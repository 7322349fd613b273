package signaling

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textFrame(s string) frame {
	return frame{msgType: websocket.TextMessage, data: []byte(s)}
}

func TestSendQueue_ByteBudget(t *testing.T) {
	q := newSendQueue(8)

	require.True(t, q.Enqueue(textFrame("abcd")))
	require.True(t, q.Enqueue(textFrame("efgh")))
	assert.False(t, q.Enqueue(textFrame("i")))
	assert.Equal(t, uint64(1), q.DropCount())

	f, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "abcd", string(f.data))
	assert.True(t, q.Enqueue(textFrame("i")))
}

func TestSendQueue_CloseDrainsThenStops(t *testing.T) {
	q := newSendQueue(64)
	require.True(t, q.Enqueue(textFrame("a")))
	require.True(t, q.Enqueue(textFrame("b")))

	q.CloseWith(websocket.CloseGoingAway, "bye")
	q.CloseWith(websocket.CloseNormalClosure, "ignored")
	assert.False(t, q.Enqueue(textFrame("c")))
	assert.True(t, q.Closed())

	for _, want := range []string{"a", "b"} {
		f, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, want, string(f.data))
	}
	_, ok := q.Dequeue()
	assert.False(t, ok)
	assert.Equal(t, closeRequest{code: websocket.CloseGoingAway, reason: "bye"}, q.pendingClose())
}

func TestSendQueue_AbortDiscards(t *testing.T) {
	q := newSendQueue(64)
	require.True(t, q.Enqueue(textFrame("abc")))
	require.True(t, q.Enqueue(textFrame("de")))

	assert.Equal(t, 5, q.Abort(websocket.ClosePolicyViolation, "send queue overflow"))
	_, ok := q.Dequeue()
	assert.False(t, ok)
	assert.Equal(t, websocket.ClosePolicyViolation, q.pendingClose().code)
}

func TestSendQueue_DequeueBlocksUntilFrame(t *testing.T) {
	q := newSendQueue(64)
	got := make(chan string, 1)
	go func() {
		f, _ := q.Dequeue()
		got <- string(f.data)
	}()

	select {
	case <-got:
		t.Fatal("dequeue returned before a frame was queued")
	case <-time.After(20 * time.Millisecond):
	}

	require.True(t, q.Enqueue(textFrame("x")))
	select {
	case s := <-got:
		assert.Equal(t, "x", s)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up")
	}
}

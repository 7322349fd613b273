package signaling

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/swapychat/pairing-relay/internal/pairing"
)

func TestWebSocketSignaling_IdleTimeoutClosesWithoutPong(t *testing.T) {
	env := startSignaling(t, Config{
		IdleTimeout:  500 * time.Millisecond,
		PingInterval: 50 * time.Millisecond,
	}, pairing.Config{})

	c, _, err := websocket.DefaultDialer.Dial(env.url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	pingSeen := make(chan struct{}, 1)
	c.SetPingHandler(func(string) error {
		select {
		case pingSeen <- struct{}{}:
		default:
		}
		// Intentionally do not respond with pong.
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		_, _, err := c.ReadMessage()
		errCh <- err
	}()

	select {
	case <-pingSeen:
	case err := <-errCh:
		t.Fatalf("connection closed before receiving ping: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for server ping")
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected server to close the websocket")
		}
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Fatalf("expected close normal closure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for server to close idle websocket")
	}
}

func TestWebSocketSignaling_PongKeepsConnectionOpenBeyondIdleTimeout(t *testing.T) {
	idleTimeout := 500 * time.Millisecond
	pingInterval := 50 * time.Millisecond
	env := startSignaling(t, Config{
		IdleTimeout:  idleTimeout,
		PingInterval: pingInterval,
	}, pairing.Config{})

	c, _, err := websocket.DefaultDialer.Dial(env.url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	pingSeen := make(chan struct{}, 1)
	c.SetPingHandler(func(appData string) error {
		select {
		case pingSeen <- struct{}{}:
		default:
		}
		return c.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(1*time.Second))
	})

	errCh := make(chan error, 1)
	go func() {
		_, _, err := c.ReadMessage()
		errCh <- err
	}()

	select {
	case <-pingSeen:
	case err := <-errCh:
		t.Fatalf("connection closed before receiving ping: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for server ping")
	}

	time.Sleep(idleTimeout + 2*pingInterval)

	select {
	case err := <-errCh:
		t.Fatalf("unexpected close before idle timeout elapsed: %v", err)
	default:
	}
	if got := env.svc.Stats().Connections; got != 1 {
		t.Fatalf("registered connections = %d, want 1", got)
	}

	_ = c.Close()
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for read goroutine to exit")
	}
}

func TestWebSocketSignaling_IdleTimeoutNotifiesPartner(t *testing.T) {
	env := startSignaling(t, Config{
		IdleTimeout:  300 * time.Millisecond,
		PingInterval: 50 * time.Millisecond,
	}, pairing.Config{})

	a := env.dial(t, nil)
	a.SetPingHandler(func(string) error { return nil })
	send(t, a, `{"type":"init"}`)
	expectType(t, a, MessageTypeWaiting)

	b := env.dial(t, nil)
	send(t, b, `{"type":"init"}`)
	expectType(t, b, MessageTypeStart)

	// b answers pings while it blocks in ReadMessage; a does not.
	expectType(t, b, MessageTypePartnerLeft)
}

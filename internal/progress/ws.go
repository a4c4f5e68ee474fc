package progress

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWriteTimeout bounds a single frame write to a websocket peer.
const DefaultWriteTimeout = 5 * time.Second

// WSSubscriber pushes events over a websocket connection.
type WSSubscriber struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

// NewWSSubscriber wraps conn. A stalled peer fails the write after
// writeTimeout and gets pruned from the hub.
func NewWSSubscriber(conn *websocket.Conn, writeTimeout time.Duration) *WSSubscriber {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &WSSubscriber{conn: conn, writeTimeout: writeTimeout}
}

// Send implements Subscriber.
func (s *WSSubscriber) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(ev)
}

// Close implements Subscriber.
func (s *WSSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.conn.Close()
	})
	return err
}

// Drain reads and discards client frames until the connection fails.
// The channel is send-only from the server's point of view, but reading is
// what surfaces the peer's close.
func (s *WSSubscriber) Drain() error {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

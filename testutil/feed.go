package testutil

import (
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// FeedServer is an in-process SBS-1 TCP server. Each accepted client can be
// sent lines and dropped on demand.
type FeedServer struct {
	listener net.Listener

	mu       sync.Mutex
	conns    []net.Conn
	accepted int

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewFeedServer listens on a random loopback port and closes on test cleanup.
func NewFeedServer(t *testing.T) *FeedServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := &FeedServer{listener: ln}
	s.wg.Add(1)
	go s.acceptLoop()

	t.Cleanup(s.Close)
	return s
}

func (s *FeedServer) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.accepted++
		s.mu.Unlock()
	}
}

// Addr returns host:port of the listener.
func (s *FeedServer) Addr() string {
	return s.listener.Addr().String()
}

// Accepted returns the number of connections accepted so far.
func (s *FeedServer) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// WaitForConnections waits until n connections were accepted.
func (s *FeedServer) WaitForConnections(t *testing.T, n int, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Accepted() >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d feed connections, got %d", n, s.Accepted())
}

// Send writes each line terminated by CRLF to every open client. Clients
// whose write fails are closed and forgotten. It fails the test when no
// client took the payload.
func (s *FeedServer) Send(t *testing.T, lines ...string) {
	t.Helper()

	payload := []byte(strings.Join(lines, "\r\n") + "\r\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.conns[:0]
	for _, c := range s.conns {
		if _, err := c.Write(payload); err != nil {
			_ = c.Close()
			continue
		}
		live = append(live, c)
	}
	s.conns = live
	if len(live) == 0 {
		t.Fatalf("feed write: no open clients")
	}
}

// Drop closes every open client connection. The listener stays up.
func (s *FeedServer) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

// Close shuts the listener and all clients.
func (s *FeedServer) Close() {
	s.closeOnce.Do(func() {
		_ = s.listener.Close()
		s.wg.Wait()
		s.Drop()
	})
}

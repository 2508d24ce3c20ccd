package ipc

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer("127.0.0.1", 0, log)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

// acceptClients pumps Accept until the server sees `want` clients.
func acceptClients(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() < want {
		if time.Now().After(deadline) {
			t.Fatalf("server never accepted %d clients", want)
		}
		s.Accept()
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	s := newTestServer(t)
	if err := s.Start(); err != nil {
		t.Errorf("second Start: %v", err)
	}
	s.Stop()
	s.Stop()
	if s.Addr() != "" {
		t.Error("Addr should be empty after Stop")
	}
}

func TestPortInUse(t *testing.T) {
	s := newTestServer(t)
	_, portStr, err := net.SplitHostPort(s.Addr())
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	other := NewServer("127.0.0.1", port, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err = other.Start()
	if err == nil {
		other.Stop()
		t.Fatal("second listener on the same port must fail")
	}
	if !errors.Is(err, ErrPortInUse) {
		t.Errorf("err = %v, want ErrPortInUse", err)
	}
	if !strings.Contains(err.Error(), "already in use") {
		t.Errorf("err = %q, want actionable message", err)
	}
}

func TestAcceptPollBroadcast(t *testing.T) {
	s := newTestServer(t)

	c, err := Dial(s.Addr(), time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	acceptClients(t, s, 1)

	// Inbound: client command reaches the server through Poll.
	if err := c.Send(NewMessage(KindPause)); err != nil {
		t.Fatal(err)
	}
	var got []Message
	deadline := time.Now().Add(2 * time.Second)
	for len(got) == 0 && time.Now().Before(deadline) {
		for _, msgs := range s.Poll() {
			got = append(got, msgs...)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(got) != 1 || got[0].Kind != KindPause {
		t.Fatalf("polled %+v, want one pause", got)
	}

	// Outbound: broadcast reaches the client.
	snap, err := NewSnapshot(map[string]string{"state": "running"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Broadcast(snap); err != nil {
		t.Fatal(err)
	}
	m, err := c.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if m.Kind != KindSnapshot {
		t.Errorf("kind = %q, want snapshot", m.Kind)
	}
}

func TestMalformedInboundLineKeepsConnection(t *testing.T) {
	s := newTestServer(t)

	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	acceptClients(t, s, 1)

	if _, err := conn.Write([]byte("garbage line\n")); err != nil {
		t.Fatal(err)
	}
	var got []Message
	deadline := time.Now().Add(2 * time.Second)
	for len(got) == 0 && time.Now().Before(deadline) {
		for _, msgs := range s.Poll() {
			got = append(got, msgs...)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(got) != 1 || got[0].Kind != KindError || got[0].Raw != "garbage line" {
		t.Fatalf("got %+v, want one error message", got)
	}
	if s.ClientCount() != 1 {
		t.Error("malformed line must not drop the client")
	}
}

// A client that never reads accumulates write buffer until it crosses
// the cap and is disconnected; a prompt reader is unaffected.
func TestSlowClientDisconnected(t *testing.T) {
	s := newTestServer(t)

	fast, err := Dial(s.Addr(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer fast.Close()

	slow, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer slow.Close()
	acceptClients(t, s, 2)

	// Fast client drains in the background.
	received := make(chan int, 64)
	go func() {
		n := 0
		for {
			if _, err := fast.Next(); err != nil {
				return
			}
			n++
			received <- n
		}
	}()

	big, err := NewSnapshot(strings.Repeat("x", 2<<20))
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(10 * time.Second)
	for s.ClientCount() > 1 {
		if time.Now().After(deadline) {
			t.Fatal("slow client was never disconnected")
		}
		if err := s.Broadcast(big); err != nil {
			t.Fatal(err)
		}
		s.Flush()
		time.Sleep(10 * time.Millisecond)
	}

	// The fast client received at least one full snapshot.
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("fast client received nothing")
	}
}

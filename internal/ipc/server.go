package ipc

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxBufferBytes is the per-client cap on either buffer. A client
	// whose read or write buffer exceeds it is disconnected.
	MaxBufferBytes = 10 << 20
	// readChunkBytes is the most poll reads per client per call.
	readChunkBytes = 8 << 10
	// maxFlushWrites bounds write syscalls per client per flush cycle.
	maxFlushWrites = 10
)

// ErrPortInUse wraps EADDRINUSE with an actionable message.
var ErrPortInUse = errors.New("port in use")

// Server is a single-threaded, non-blocking TCP fan-out. It performs
// no I/O on its own; the scheduler drives Accept, Poll, Broadcast, and
// Flush from its tick loop.
type Server struct {
	bind    string
	port    int
	ln      *net.TCPListener
	clients map[string]*client
	log     *slog.Logger
}

type client struct {
	id    string
	conn  net.Conn
	rbuf  bytes.Buffer
	wbuf  bytes.Buffer
}

// NewServer creates a server that will listen on bind:port.
func NewServer(bind string, port int, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		bind:    bind,
		port:    port,
		clients: make(map[string]*client),
		log:     log,
	}
}

// Start binds the listener. Calling Start on a running server is a
// no-op.
func (s *Server) Start() error {
	if s.ln != nil {
		return nil
	}
	addr := fmt.Sprintf("%s:%d", s.bind, s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("%w: port %d is already in use", ErrPortInUse, s.port)
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.ln = ln.(*net.TCPListener)
	s.log.Info("ipc listening", "addr", addr)
	return nil
}

// Stop closes the listener and every client. Idempotent.
func (s *Server) Stop() {
	if s.ln != nil {
		s.ln.Close()
		s.ln = nil
	}
	for id := range s.clients {
		s.disconnect(id, "server stopped")
	}
}

// Addr returns the bound address, or "" when stopped.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	return len(s.clients)
}

// Accept drains all pending connections without blocking and returns
// the ids of newly connected clients.
func (s *Server) Accept() []string {
	if s.ln == nil {
		return nil
	}
	var ids []string
	for {
		s.ln.SetDeadline(time.Now())
		conn, err := s.ln.Accept()
		if err != nil {
			break
		}
		id := uuid.NewString()[:8]
		s.clients[id] = &client{id: id, conn: conn}
		s.log.Debug("ipc client connected", "client", id, "remote", conn.RemoteAddr())
		ids = append(ids, id)
	}
	return ids
}

// Broadcast enqueues the message to every client and attempts one
// flush cycle each.
func (s *Server) Broadcast(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	for id := range s.clients {
		s.enqueue(id, data)
	}
	return nil
}

// SendTo enqueues the message to one client and flushes.
func (s *Server) SendTo(clientID string, m Message) error {
	if _, ok := s.clients[clientID]; !ok {
		return fmt.Errorf("unknown client %s", clientID)
	}
	data, err := Encode(m)
	if err != nil {
		return err
	}
	s.enqueue(clientID, data)
	return nil
}

func (s *Server) enqueue(id string, data []byte) {
	c, ok := s.clients[id]
	if !ok {
		return
	}
	c.wbuf.Write(data)
	if c.wbuf.Len() > MaxBufferBytes {
		s.disconnect(id, "write buffer overflow")
		return
	}
	s.flushClient(c)
}

// Flush retries pending partial writes for every client. Called once
// per tick.
func (s *Server) Flush() {
	for _, c := range s.clients {
		if c.wbuf.Len() > 0 {
			s.flushClient(c)
		}
	}
}

// flushClient writes buffered bytes with up to maxFlushWrites
// non-blocking syscalls. Whatever does not fit stays buffered.
func (s *Server) flushClient(c *client) {
	for i := 0; i < maxFlushWrites && c.wbuf.Len() > 0; i++ {
		c.conn.SetWriteDeadline(time.Now().Add(time.Millisecond))
		n, err := c.conn.Write(c.wbuf.Bytes())
		if n > 0 {
			c.wbuf.Next(n)
		}
		if err != nil {
			if isTimeout(err) {
				return
			}
			s.disconnect(c.id, "write failed")
			return
		}
	}
}

// Poll reads up to 8 KiB from each client, extracts complete lines,
// and returns decoded messages grouped by client id.
func (s *Server) Poll() map[string][]Message {
	out := make(map[string][]Message)
	for id, c := range s.clients {
		chunk := make([]byte, readChunkBytes)
		c.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, err := c.conn.Read(chunk)
		if n > 0 {
			c.rbuf.Write(chunk[:n])
			if c.rbuf.Len() > MaxBufferBytes {
				s.disconnect(id, "read buffer overflow")
				continue
			}
		}
		if err != nil && !isTimeout(err) {
			// Drain what we have, then drop the connection.
			if msgs := extractLines(&c.rbuf, id); len(msgs) > 0 {
				out[id] = msgs
			}
			s.disconnect(id, "read failed")
			continue
		}
		if msgs := extractLines(&c.rbuf, id); len(msgs) > 0 {
			out[id] = msgs
		}
	}
	return out
}

func extractLines(buf *bytes.Buffer, clientID string) []Message {
	var msgs []Message
	for {
		data := buf.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return msgs
		}
		line := make([]byte, i)
		copy(line, data[:i])
		buf.Next(i + 1)
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		msgs = append(msgs, Decode(line, clientID))
	}
}

// Disconnect closes the client's socket and drops its buffers.
func (s *Server) Disconnect(clientID string) {
	s.disconnect(clientID, "requested")
}

func (s *Server) disconnect(id, reason string) {
	c, ok := s.clients[id]
	if !ok {
		return
	}
	c.conn.Close()
	delete(s.clients, id)
	s.log.Debug("ipc client disconnected", "client", id, "reason", reason)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

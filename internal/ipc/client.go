package ipc

import (
	"bufio"
	"fmt"
	"net"
	"time"
)

// Client is a blocking observer connection to a running daemon. Used
// by the watch TUI and the operator commands; the daemon side never
// uses it.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// Dial connects to the daemon's consume port.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", addr, err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64<<10), MaxBufferBytes)
	return &Client{conn: conn, scanner: scanner}, nil
}

// Send writes one message to the daemon.
func (c *Client) Send(m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("send %s: %w", m.Kind, err)
	}
	return nil
}

// Next blocks until the daemon sends the next message.
func (c *Client) Next() (Message, error) {
	for c.scanner.Scan() {
		line := c.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		return Decode(line, ""), nil
	}
	if err := c.scanner.Err(); err != nil {
		return Message{}, fmt.Errorf("read from daemon: %w", err)
	}
	return Message{}, fmt.Errorf("daemon closed the connection")
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

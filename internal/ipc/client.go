package ipc

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bnema/seamless/internal/logger"
)

// ErrNotRunning is returned when nothing listens on the socket.
var ErrNotRunning = errors.New("seamless is not running")

// Client talks to a running node or overlay. A connection is opened per
// request.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the socket at socketPath
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    2 * time.Second,
	}
}

// WithTimeout sets the dial and round trip timeout
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.timeout = timeout
	return c
}

// Status queries the node status
func (c *Client) Status() (Status, error) {
	resp, err := c.roundTrip(NewStatusQuery())
	if err != nil {
		return Status{}, err
	}
	return resp.Status()
}

// SetIndicator shows or hides the overlay indicator
func (c *Client) SetIndicator(visible bool) error {
	resp, err := c.roundTrip(NewIndicator(visible))
	if err != nil {
		return err
	}
	if resp.Kind != KindAck {
		return fmt.Errorf("%w: unexpected response %q", ErrMalformed, resp.Kind)
	}
	return nil
}

// Release asks the node to take the pointer back
func (c *Client) Release() error {
	resp, err := c.roundTrip(NewRelease())
	if err != nil {
		return err
	}
	if resp.Kind != KindAck {
		return fmt.Errorf("%w: unexpected response %q", ErrMalformed, resp.Kind)
	}
	return nil
}

// IsRunning reports whether something answers status queries on the socket.
func (c *Client) IsRunning() bool {
	_, err := c.Status()
	return err == nil
}

func (c *Client) roundTrip(msg Message) (Message, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrNotRunning, err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Debugf("Failed to close IPC connection: %v", err)
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		logger.Warnf("Failed to set connection deadline: %v", err)
	}

	if err := writeFrame(conn, msg); err != nil {
		return Message{}, fmt.Errorf("failed to send message: %w", err)
	}
	resp, err := readFrame(conn)
	if err != nil {
		return Message{}, fmt.Errorf("failed to read response: %w", err)
	}
	if err := resp.Err(); err != nil {
		return Message{}, err
	}
	return resp, nil
}

// OverlayIndicator drives the overlay process over its socket. It satisfies
// the pointer controller's Indicator.
type OverlayIndicator struct {
	client *Client
}

// NewOverlayIndicator creates an indicator for the overlay at socketPath.
// The overlay sits on the input path, so the timeout is short.
func NewOverlayIndicator(socketPath string) *OverlayIndicator {
	return &OverlayIndicator{client: NewClient(socketPath).WithTimeout(250 * time.Millisecond)}
}

func (o *OverlayIndicator) Show() error { return o.client.SetIndicator(true) }

func (o *OverlayIndicator) Hide() error { return o.client.SetIndicator(false) }

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package client speaks the envelope protocol to a mapforge server
// over one persistent connection. The connection carries the login
// session, so a Client is one identity. Calls are serialized: the
// server answers requests in order, and the client waits for each
// response before sending the next request.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/mapforge/lib/envelope"
)

// dialTimeout is the maximum time to wait for a connection to the
// server. It covers only the connect phase.
const dialTimeout = 5 * time.Second

// ErrClosed is returned by Call after Close or after a transport
// failure has made the connection unusable.
var ErrClosed = errors.New("client: connection closed")

// Client is a connection to a mapforge server. Safe for concurrent
// use; concurrent calls are sent one at a time.
type Client struct {
	mu           sync.Mutex
	conn         net.Conn
	maxFrameSize int
	nextID       int64
	broken       error
}

// Dial connects to a server.
func Dial(ctx context.Context, network, address string) (*Client, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("client: connecting to %s %s: %w", network, address, err)
	}
	return New(conn), nil
}

// New wraps an established connection. The Client owns conn.
func New(conn net.Conn) *Client {
	return &Client{conn: conn, maxFrameSize: envelope.DefaultMaxFrameSize}
}

// Close closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken == nil {
		c.broken = ErrClosed
	}
	return c.conn.Close()
}

// Call sends one request and returns its response. A response with a
// non-zero error code is returned together with its error (an
// *envelope.Error), so callers can inspect error payloads such as a
// partial batch removal.
func (c *Client) Call(ctx context.Context, class, function string, payload map[string]any, binary []byte) (*envelope.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken != nil {
		return nil, c.broken
	}

	c.nextID++
	request := &envelope.Envelope{
		Class:         class,
		Function:      function,
		Payload:       payload,
		Binary:        binary,
		CorrelationID: c.nextID,
	}

	// Cancellation interrupts blocked I/O through the deadline. The
	// callback must finish before the next call clears the deadline.
	c.conn.SetDeadline(time.Time{})
	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(time.Now())
		close(interrupted)
	})
	defer func() {
		if !stop() {
			<-interrupted
		}
	}()

	if err := envelope.WriteFrame(c.conn, request); err != nil {
		return nil, c.fail(ctx, fmt.Errorf("client: sending %s/%s: %w", class, function, err))
	}
	response, err := envelope.ReadFrame(c.conn, c.maxFrameSize)
	if err != nil {
		if envelope.IsStreamBroken(err) {
			return nil, c.fail(ctx, fmt.Errorf("client: reading %s/%s response: %w", class, function, err))
		}
		return nil, fmt.Errorf("client: reading %s/%s response: %w", class, function, err)
	}

	if response.IsDecodeFailure() {
		return response, fmt.Errorf("client: server could not decode %s/%s: %w", class, function, response.Err())
	}
	if response.CorrelationID != request.CorrelationID {
		return nil, c.fail(ctx, fmt.Errorf("client: response correlation id %d, want %d", response.CorrelationID, request.CorrelationID))
	}
	return response, response.Err()
}

// fail marks the connection unusable. The context's error takes
// precedence, so a cancelled call reports cancellation.
func (c *Client) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w (%w)", ctxErr, err)
	}
	c.broken = fmt.Errorf("%w: %w", ErrClosed, err)
	c.conn.Close()
	return err
}

// Identity is the result of Login and Whoami.
type Identity struct {
	Username      string
	Roles         []string
	Authenticated bool
}

// Login authenticates the connection.
func (c *Client) Login(ctx context.Context, username, token string) (Identity, error) {
	response, err := c.Call(ctx, "session", "login", map[string]any{
		"username": username,
		"token":    token,
	}, nil)
	if err != nil {
		return Identity{}, err
	}
	return identityFrom(response.Payload), nil
}

// Whoami returns the connection's identity.
func (c *Client) Whoami(ctx context.Context) (Identity, error) {
	response, err := c.Call(ctx, "session", "whoami", nil, nil)
	if err != nil {
		return Identity{}, err
	}
	return identityFrom(response.Payload), nil
}

func identityFrom(payload map[string]any) Identity {
	identity := Identity{}
	identity.Username, _ = payload["username"].(string)
	identity.Authenticated, _ = payload["authenticated"].(bool)
	roles, _ := payload["roles"].([]any)
	for _, role := range roles {
		if name, ok := role.(string); ok {
			identity.Roles = append(identity.Roles, name)
		}
	}
	return identity
}

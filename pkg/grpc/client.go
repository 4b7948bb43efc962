package grpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/logger"
)

// ErrRemote wraps error strings returned by the server.
var ErrRemote = errors.New("rpc error")

// Client holds one connection and serialises calls on it. A transport
// failure drops the connection; the next call dials again.
type Client struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
	rd   *bufio.Reader
	seq  uint64
}

// Dial connects eagerly so a bad address fails at startup.
func Dial(ctx context.Context, addr string) (*Client, error) {
	c := &Client{addr: addr}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}
	c.conn, c.rd = conn, bufio.NewReader(conn)
	return nil
}

// Call sends method with params and decodes the reply data into result,
// which may be nil. ctx's deadline bounds the exchange.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return err
		}
	}
	c.seq++
	req := Request{
		Method:    method,
		ID:        strconv.FormatUint(c.seq, 10),
		RequestID: logger.RequestID(ctx),
		Params:    raw,
	}
	resp, err := c.exchange(ctx, req)
	if err != nil {
		c.drop()
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: %s", ErrRemote, resp.Error)
	}
	if result == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, result); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) exchange(ctx context.Context, req Request) (Response, error) {
	var resp Response
	deadline, _ := ctx.Deadline()
	if err := c.conn.SetDeadline(deadline); err != nil {
		return resp, err
	}
	line, err := json.Marshal(req)
	if err != nil {
		return resp, err
	}
	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return resp, fmt.Errorf("send %s: %w", req.Method, err)
	}
	reply, err := c.rd.ReadBytes('\n')
	if err != nil {
		return resp, fmt.Errorf("receive %s: %w", req.Method, err)
	}
	if err := json.Unmarshal(reply, &resp); err != nil {
		return resp, fmt.Errorf("decode reply: %w", err)
	}
	if resp.ID != req.ID {
		return resp, fmt.Errorf("reply id %q for request %q", resp.ID, req.ID)
	}
	return resp, nil
}

func (c *Client) drop() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn, c.rd = nil, nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn, c.rd = nil, nil
	return err
}

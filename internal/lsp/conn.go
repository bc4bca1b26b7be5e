package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRequestTimeout bounds every request that has no earlier deadline.
const DefaultRequestTimeout = 15 * time.Second

type notifyFunc func(method string, params json.RawMessage)

// conn is one JSON-RPC session over a byte stream pair.
type conn struct {
	r       *bufio.Reader
	w       io.Writer
	timeout time.Duration
	notify  notifyFunc

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan *message
	err     error // set once the conn is closed
	done    chan struct{}
}

func newConn(r io.Reader, w io.Writer, timeout time.Duration, notify notifyFunc) *conn {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &conn{
		r:       bufio.NewReader(r),
		w:       w,
		timeout: timeout,
		notify:  notify,
		pending: make(map[int64]chan *message),
		done:    make(chan struct{}),
	}
}

// call sends a request and decodes its result into result (which may be nil).
func (c *conn) call(ctx context.Context, method string, params, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id := c.nextID.Add(1)
	ch := make(chan *message, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	rawID := json.RawMessage(strconv.FormatInt(id, 10))
	if err := c.write(outgoing{JSONRPC: jsonrpcVersion, ID: rawID, Method: method, Params: params}); err != nil {
		return fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrRequestTimeout, method)
		}
		return ctx.Err()
	case <-c.done:
		return c.closedErr()
	case msg := <-ch:
		if msg.Error != nil {
			return msg.Error
		}
		if result == nil || len(msg.Result) == 0 || string(msg.Result) == "null" {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

func (c *conn) notifyServer(method string, params any) error {
	if err := c.closedErr(); err != nil {
		return err
	}
	return c.write(outgoing{JSONRPC: jsonrpcVersion, Method: method, Params: params})
}

func (c *conn) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return writeMessage(c.w, data)
}

// readLoop dispatches incoming frames until the stream ends. The conn is
// closed with ErrServerCrashed on EOF.
func (c *conn) readLoop() {
	for {
		payload, err := readMessage(c.r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				c.close(ErrServerCrashed)
			} else {
				c.close(fmt.Errorf("%w: %v", ErrServerCrashed, err))
			}
			return
		}
		var msg message
		if err := json.Unmarshal(payload, &msg); err != nil {
			continue
		}
		switch {
		case msg.isResponse():
			id, err := strconv.ParseInt(string(msg.ID), 10, 64)
			if err != nil {
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[id]
			c.mu.Unlock()
			if ok {
				ch <- &msg
			}
		case msg.isServerRequest():
			// registerCapability, workspace/configuration and progress
			// requests block jdtls until answered
			_ = c.write(reply{JSONRPC: jsonrpcVersion, ID: msg.ID, Result: nil})
		case msg.Method != "" && c.notify != nil:
			c.notify(msg.Method, msg.Params)
		}
	}
}

// close fails pending and future calls with err. Only the first call counts.
func (c *conn) close(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	close(c.done)
}

func (c *conn) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/denobridge/denobridge/internal/jsonrpc"
)

// outbound is a JSON-RPC message written to the server. ID is a pointer so
// notifications omit the field entirely.
type outbound struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// inbound is a JSON-RPC message read from the server: a response when ID is
// set and Method is empty, a server-initiated request/notification otherwise.
type inbound struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpc.Error  `json:"error,omitempty"`
}

type pendingResult struct {
	result json.RawMessage
	err    error
}

// Conn is one LSP base-protocol connection: Content-Length framed JSON-RPC
// with request/response correlation by numeric id. Safe for concurrent use.
type Conn struct {
	reader *bufio.Reader
	writer io.Writer
	logger *logrus.Logger

	writeMu sync.Mutex
	nextID  int64

	pendingMu sync.Mutex
	pending   map[int64]chan pendingResult

	closed   atomic.Bool
	closeErr error
	closeMu  sync.Mutex
}

func NewConn(r io.Reader, w io.Writer, logger *logrus.Logger) *Conn {
	return &Conn{
		reader:  bufio.NewReader(r),
		writer:  w,
		logger:  logger,
		pending: map[int64]chan pendingResult{},
	}
}

// Request sends a request and suspends until the matching response arrives,
// the connection closes, or ctx is cancelled. Cancellation sends a
// $/cancelRequest notification for the in-flight id before returning.
func (c *Conn) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrNotConnected
	}

	id := atomic.AddInt64(&c.nextID, 1)
	ch := make(chan pendingResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.write(outbound{JSONRPC: jsonrpc.Version, ID: &id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("write request %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		// Tell the server the operation is abandoned, then stop waiting.
		_ = c.Notify("$/cancelRequest", map[string]int64{"id": id})
		return nil, fmt.Errorf("%w: %s: %v", ErrRequestCancelled, method, ctx.Err())
	case res := <-ch:
		return res.result, res.err
	}
}

// Notify sends a notification; no response is expected.
func (c *Conn) Notify(method string, params any) error {
	if c.closed.Load() {
		return ErrNotConnected
	}
	return c.write(outbound{JSONRPC: jsonrpc.Version, Method: method, Params: params})
}

func (c *Conn) write(msg outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := fmt.Fprintf(c.writer, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
		return err
	}
	_, err = c.writer.Write(data)
	return err
}

// ReadLoop reads and dispatches messages until the reader fails or ctx is
// cancelled. Run it in its own goroutine; it returns the error the
// connection died with.
func (c *Conn) ReadLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			c.Close(ErrConnectionClosed)
			return ctx.Err()
		default:
		}

		body, err := c.readMessage()
		if err != nil {
			if c.closed.Load() {
				return nil
			}
			c.Close(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			return err
		}
		c.dispatch(body)
	}
}

func (c *Conn) readMessage() (json.RawMessage, error) {
	contentLength := 0
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "Content-Length:") {
			v := strings.TrimSpace(strings.TrimPrefix(line, "Content-Length:"))
			contentLength, err = strconv.Atoi(v)
			if err != nil || contentLength < 0 {
				return nil, fmt.Errorf("invalid Content-Length %q", v)
			}
		}
	}
	if contentLength == 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(c.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *Conn) dispatch(body json.RawMessage) {
	var msg inbound
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logger.WithError(err).Warn("discarding unparseable server message")
		return
	}

	if msg.Method != "" {
		// Server-initiated traffic. The bridge issues opaque request/response
		// pairs only, so anything beyond log noise is ignored.
		c.logger.WithField("method", msg.Method).Debug("ignoring server notification")
		return
	}
	if msg.ID == nil {
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[*msg.ID]
	c.pendingMu.Unlock()
	if !ok {
		c.logger.WithField("id", *msg.ID).Debug("response for unknown request id")
		return
	}

	res := pendingResult{result: msg.Result}
	if msg.Error != nil {
		res.err = &ServerError{Code: msg.Error.Code, Message: msg.Error.Message, Data: msg.Error.Data}
	}
	select {
	case ch <- res:
	default:
	}
}

// Close fails every outstanding request with cause and rejects further
// sends. Idempotent; the first cause wins.
func (c *Conn) Close(cause error) {
	if c.closed.Swap(true) {
		return
	}
	if cause == nil {
		cause = ErrConnectionClosed
	}
	c.closeMu.Lock()
	c.closeErr = cause
	c.closeMu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		select {
		case ch <- pendingResult{err: cause}:
		default:
		}
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}

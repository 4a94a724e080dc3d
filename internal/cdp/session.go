package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"devprobe/internal/logging"

	"github.com/go-rod/rod/lib/proto"
	"github.com/gorilla/websocket"
)

// Defaults used when the caller does not override them.
const (
	DefaultDialTimeout    = 5 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

// request is an outgoing command frame.
type request struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// frame is any inbound frame: a response when ID is set, an event otherwise.
type frame struct {
	ID     *int64          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// pendingRequest tracks one in-flight request until its response arrives.
type pendingRequest struct {
	id        int64
	method    string
	createdAt time.Time
	done      chan *frame
}

// Session is one live socket to one debug target.
type Session struct {
	target         DebugTarget
	conn           *websocket.Conn
	requestTimeout time.Duration
	log            *logging.Logger

	nextID  atomic.Int64
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]*pendingRequest
	subs    []*Subscription
	cause   error

	done      chan struct{}
	readDone  chan struct{}
	closeOnce sync.Once
}

// Option configures Open.
type Option func(*options)

type options struct {
	dialTimeout    time.Duration
	requestTimeout time.Duration
}

// WithDialTimeout bounds the websocket handshake. Zero keeps the default.
func WithDialTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.dialTimeout = d
		}
	}
}

// WithRequestTimeout sets the timeout used when a request passes zero.
// Zero keeps the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// Open dials the target's socket and starts the receive loop.
func Open(ctx context.Context, target DebugTarget, opts ...Option) (*Session, error) {
	o := options{dialTimeout: DefaultDialTimeout, requestTimeout: DefaultRequestTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	if target.SocketEndpoint == "" {
		return nil, &ConnectionError{Err: errors.New("target has no socket endpoint")}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: o.dialTimeout,
		ReadBufferSize:   64 * 1024,
	}
	conn, _, err := dialer.DialContext(ctx, target.SocketEndpoint, nil)
	if err != nil {
		return nil, &ConnectionError{Endpoint: target.SocketEndpoint, Err: err}
	}

	s := &Session{
		target:         target,
		conn:           conn,
		requestTimeout: o.requestTimeout,
		log:            logging.Get(logging.CategoryTransport).With("target", target.ID),
		pending:        make(map[int64]*pendingRequest),
		done:           make(chan struct{}),
		readDone:       make(chan struct{}),
	}
	s.log.Debug("session opened: %s", target.SocketEndpoint)

	go s.readLoop()
	return s, nil
}

// Target returns the target this session is attached to.
func (s *Session) Target() DebugTarget {
	return s.target
}

// Done is closed once the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Request sends one command and waits for its response. A zero timeout uses
// the session default. On timeout or cancellation the session is closed.
func (s *Session) Request(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = s.requestTimeout
	}
	if params == nil {
		params = struct{}{}
	}

	p := &pendingRequest{
		id:        s.nextID.Add(1),
		method:    method,
		createdAt: time.Now(),
		done:      make(chan *frame, 1),
	}

	// Register before writing so a fast response cannot be missed.
	s.mu.Lock()
	if s.cause != nil {
		cause := s.cause
		s.mu.Unlock()
		return nil, &ConnectionError{Endpoint: s.target.SocketEndpoint, Err: cause}
	}
	s.pending[p.id] = p
	s.mu.Unlock()

	data, err := json.Marshal(request{ID: p.id, Method: method, Params: params})
	if err != nil {
		s.forget(p.id)
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}

	s.writeMu.Lock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	err = s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		s.forget(p.id)
		s.teardown(err)
		return nil, &ConnectionError{Endpoint: s.target.SocketEndpoint, Err: err}
	}
	s.log.Debug("-> #%d %s", p.id, method)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-p.done:
		return responseResult(method, resp)

	case <-timer.C:
		s.forget(p.id)
		s.log.Warn("#%d %s timed out after %v, closing session", p.id, method, timeout)
		s.teardown(&TimeoutError{Method: method, After: timeout})
		return nil, &TimeoutError{Method: method, After: timeout}

	case <-ctx.Done():
		s.forget(p.id)
		s.teardown(ctx.Err())
		return nil, ctx.Err()

	case <-s.done:
		// A response may have raced the teardown.
		select {
		case resp := <-p.done:
			return responseResult(method, resp)
		default:
		}
		return nil, &ConnectionError{Endpoint: s.target.SocketEndpoint, Err: s.err()}
	}
}

// responseResult turns a matched response frame into its result or the
// protocol error it carries.
func responseResult(method string, resp *frame) (json.RawMessage, error) {
	if resp.Error != nil {
		return nil, &ProtocolError{
			Method:  method,
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Data:    resp.Error.Data,
		}
	}
	if len(resp.Result) == 0 {
		return json.RawMessage("{}"), nil
	}
	return resp.Result, nil
}

// Subscribe starts delivering events whose method is in methods (all events
// when empty). Issue the matching enable handshake after subscribing.
func (s *Session) Subscribe(methods ...string) *Subscription {
	sub := newSubscription(methods)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cause != nil {
		sub.end()
		return sub
	}
	s.subs = append(s.subs, sub)
	sub.detach = func() { s.removeSubscription(sub) }
	return sub
}

// removeSubscription builds a fresh slice so dispatch can keep iterating
// the one it already copied.
func (s *Session) removeSubscription(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make([]*Subscription, 0, len(s.subs))
	for _, other := range s.subs {
		if other != sub {
			kept = append(kept, other)
		}
	}
	s.subs = kept
}

// Close tears the session down and stops every subscription.
func (s *Session) Close() error {
	s.teardown(ErrSessionClosed)
	<-s.readDone

	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return nil
}

// Client binds the session to a context and timeout so typed rod/proto
// requests can be sent through it, e.g. proto.NetworkEnable{}.Call(s.Client(ctx, 0)).
func (s *Session) Client(ctx context.Context, timeout time.Duration) proto.Client {
	return &boundClient{s: s, ctx: ctx, timeout: timeout}
}

type boundClient struct {
	s       *Session
	ctx     context.Context
	timeout time.Duration
}

func (b *boundClient) Call(ctx context.Context, _ string, method string, params interface{}) ([]byte, error) {
	return b.s.Request(ctx, method, params, b.timeout)
}

func (b *boundClient) GetContext() context.Context { return b.ctx }

func (s *Session) forget(id int64) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Session) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cause == nil {
		return ErrSessionClosed
	}
	return s.cause
}

// teardown closes the socket once. Pending requests observe done; queued
// events stay deliverable until Close.
func (s *Session) teardown(cause error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.cause = cause
		dropped := len(s.pending)
		s.pending = make(map[int64]*pendingRequest)
		subs := append([]*Subscription(nil), s.subs...)
		s.mu.Unlock()

		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()

		for _, sub := range subs {
			sub.end()
		}
		if dropped > 0 {
			s.log.Debug("session closed with %d pending requests: %v", dropped, cause)
		} else {
			s.log.Debug("session closed: %v", cause)
		}
	})
}

// readLoop is the single reader of the socket.
func (s *Session) readLoop() {
	defer close(s.readDone)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.log.Warn("socket read failed: %v", err)
			}
			s.teardown(err)
			return
		}
		s.dispatch(data)
	}
}

func (s *Session) dispatch(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.log.Warn("discarding malformed frame: %v", err)
		return
	}

	if f.ID != nil {
		s.mu.Lock()
		p, ok := s.pending[*f.ID]
		if ok {
			delete(s.pending, *f.ID)
		}
		s.mu.Unlock()

		if !ok {
			s.log.Warn("received response for unknown id %d, discarding", *f.ID)
			return
		}
		s.log.Debug("<- #%d %s (%v)", p.id, p.method, time.Since(p.createdAt))
		p.done <- &f
		return
	}

	if f.Method == "" {
		s.log.Debug("discarding frame without id or method")
		return
	}

	ev, err := decodeEvent(f.Method, f.Params)
	if err != nil {
		s.log.Warn("discarding event: %v", err)
		return
	}

	s.mu.Lock()
	subs := s.subs
	s.mu.Unlock()
	for _, sub := range subs {
		if sub.matches(f.Method) {
			sub.push(ev)
		}
	}
}

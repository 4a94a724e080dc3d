// Package cdptest provides a scriptable fake debug target for tests.
//
// The server speaks the real wire format over a real websocket so sessions,
// collectors and executors can be exercised without a browser.
package cdptest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"devprobe/internal/cdp"

	"github.com/gorilla/websocket"
)

// ErrNoReply makes a handler swallow the request, so the caller times out.
var ErrNoReply = errors.New("cdptest: no reply")

// Error is returned by a handler to send an error envelope.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

// Handler answers one method. Returning *Error sends an error envelope,
// ErrNoReply sends nothing, anything else is marshalled as the result.
type Handler func(c *Conn, params json.RawMessage) (interface{}, error)

// Call is one request the server received.
type Call struct {
	ID     int64
	Method string
	Params json.RawMessage
}

// Server is a fake remote-debugging endpoint.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
	conns    map[*Conn]struct{}
	wg       sync.WaitGroup
	upgrader websocket.Upgrader
	closed   bool
}

// NewServer starts a server and closes it when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		handlers: make(map[string]Handler),
		conns:    make(map[*Conn]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/devtools/page/", s.serveSocket)
	mux.HandleFunc("/json/list", s.serveList)
	mux.HandleFunc("/json", s.serveList)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Target describes the fake page.
func (s *Server) Target() cdp.DebugTarget {
	return cdp.DebugTarget{
		ID:             "PAGE1",
		Title:          "fake page",
		URL:            "http://app.local/index.html",
		SocketEndpoint: "ws" + strings.TrimPrefix(s.URL, "http") + "/devtools/page/PAGE1",
		Kind:           "page",
	}
}

// Handle registers h for method, replacing any previous handler.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// HandleResult registers a handler that always returns result.
func (s *Server) HandleResult(method string, result interface{}) {
	s.Handle(method, func(*Conn, json.RawMessage) (interface{}, error) { return result, nil })
}

// Calls returns the requests received for method (all when empty).
func (s *Server) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Emit sends an event to every connected session.
func (s *Server) Emit(method string, params interface{}) {
	for _, c := range s.connections() {
		c.Emit(method, params)
	}
}

// Connections returns the number of currently open sockets.
func (s *Server) Connections() int {
	return len(s.connections())
}

func (s *Server) connections() []*Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

// Close drops every socket, waits for background work and stops the server.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	for _, c := range s.connections() {
		_ = c.ws.Close()
	}
	s.wg.Wait()
	s.Server.Close()
}

func (s *Server) serveList(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode([]cdp.DebugTarget{s.Target()})
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &Conn{server: s, ws: ws}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ws.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var call Call
		if err := json.Unmarshal(data, &call); err != nil {
			continue
		}
		s.mu.Lock()
		s.calls = append(s.calls, call)
		h := s.handlers[call.Method]
		s.mu.Unlock()

		c.answer(call, h)
	}
}

// Conn is one accepted session socket.
type Conn struct {
	server  *Server
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *Conn) answer(call Call, h Handler) {
	if h == nil {
		c.reply(call.ID, nil, &Error{Code: -32601, Message: fmt.Sprintf("'%s' wasn't found", call.Method)})
		return
	}
	result, err := h(c, call.Params)
	if errors.Is(err, ErrNoReply) {
		return
	}
	c.reply(call.ID, result, err)
}

func (c *Conn) reply(id int64, result interface{}, err error) {
	frame := map[string]interface{}{"id": id}
	if err != nil {
		var e *Error
		if !errors.As(err, &e) {
			e = &Error{Code: -32000, Message: err.Error()}
		}
		frame["error"] = map[string]interface{}{"code": e.Code, "message": e.Message}
	} else {
		if result == nil {
			result = struct{}{}
		}
		frame["result"] = result
	}
	c.WriteJSON(frame)
}

// Emit sends one event frame on this socket.
func (c *Conn) Emit(method string, params interface{}) {
	c.WriteJSON(map[string]interface{}{"method": method, "params": params})
}

// WriteJSON sends an arbitrary frame; errors are ignored.
func (c *Conn) WriteJSON(v interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.WriteJSON(v)
}

// Later runs fn after d on a tracked goroutine, e.g. to emit events after
// an enable handshake has been answered.
func (c *Conn) Later(d time.Duration, fn func(c *Conn)) {
	c.server.wg.Add(1)
	go func() {
		defer c.server.wg.Done()
		time.Sleep(d)
		fn(c)
	}()
}

// Close drops this socket from the server side.
func (c *Conn) Close() {
	_ = c.ws.Close()
}

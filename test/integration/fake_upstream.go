package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// RecordedRequest is one call a FakeUpstream received.
type RecordedRequest struct {
	Method      string
	Path        string
	PathParams  map[string]string
	QueryParams map[string]string
	Headers     http.Header
	// Body is the decoded JSON object body, nil for forms and empty bodies.
	Body       map[string]any
	RawBody    []byte
	ReceivedAt time.Time
}

// reply is one scripted answer of an operation.
type reply struct {
	status int
	body   any
	delay  time.Duration
	drop   bool
	build  func(*RecordedRequest) (int, any)
}

// script is the reply queue of one operation. Once exhausted the last
// reply repeats.
type script struct {
	replies []reply
	next    int
}

func (s *script) pop() (reply, bool) {
	if len(s.replies) == 0 {
		return reply{}, false
	}
	r := s.replies[min(s.next, len(s.replies)-1)]
	if s.next < len(s.replies) {
		s.next++
	}
	return r, true
}

// FakeUpstream plays the engine or the offer API. Operations are named
// routes; each replays its script and records every call. Unscripted
// operations answer 200 {"status":"ok"}.
type FakeUpstream struct {
	name   string
	server *httptest.Server

	mu      sync.Mutex
	scripts map[string]*script
	calls   map[string][]*RecordedRequest
}

// newFakeUpstream serves routes, keyed by operation name, each given as
// "METHOD /path/{param}".
func newFakeUpstream(t *testing.T, name string, routes map[string]string) *FakeUpstream {
	t.Helper()
	f := &FakeUpstream{
		name:    name,
		scripts: make(map[string]*script),
		calls:   make(map[string][]*RecordedRequest),
	}
	r := chi.NewRouter()
	for op, route := range routes {
		method, pattern, ok := strings.Cut(route, " ")
		if !ok {
			t.Fatalf("fake %s: route %q of %s lacks a method", name, route, op)
		}
		r.Method(method, pattern, f.serve(op))
	}
	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

// URL is the base URL of the fake.
func (f *FakeUpstream) URL() string { return f.server.URL }

// Operation scripts the replies of one operation.
type Operation struct {
	fake *FakeUpstream
	name string
}

// OnOperation returns the script builder of an operation.
func (f *FakeUpstream) OnOperation(name string) *Operation {
	return &Operation{fake: f, name: name}
}

func (o *Operation) then(r reply) *Operation {
	o.fake.mu.Lock()
	defer o.fake.mu.Unlock()
	s := o.fake.scripts[o.name]
	if s == nil {
		s = &script{}
		o.fake.scripts[o.name] = s
	}
	s.replies = append(s.replies, r)
	return o
}

// RespondWith queues a JSON reply.
func (o *Operation) RespondWith(status int, body any) *Operation {
	return o.then(reply{status: status, body: body})
}

// RespondWithMessage queues an error reply shaped like the engine's
// {"message": ...} body.
func (o *Operation) RespondWithMessage(status int, message string) *Operation {
	return o.then(reply{status: status, body: map[string]any{"message": message}})
}

// RespondWithFunc queues a reply computed from the call.
func (o *Operation) RespondWithFunc(build func(*RecordedRequest) (int, any)) *Operation {
	return o.then(reply{build: build})
}

// RespondWithDelay queues a reply sent after delay.
func (o *Operation) RespondWithDelay(delay time.Duration, status int, body any) *Operation {
	return o.then(reply{status: status, body: body, delay: delay})
}

// RespondWithConnectionError queues a reply that drops the connection
// without answering.
func (o *Operation) RespondWithConnectionError() *Operation {
	return o.then(reply{drop: true})
}

func (f *FakeUpstream) serve(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call := record(r)

		f.mu.Lock()
		f.calls[op] = append(f.calls[op], call)
		var (
			rep reply
			ok  bool
		)
		if s := f.scripts[op]; s != nil {
			rep, ok = s.pop()
		}
		f.mu.Unlock()

		if !ok {
			rep = reply{status: http.StatusOK, body: map[string]string{"status": "ok"}}
		}
		if rep.drop {
			if conn, _, err := http.NewResponseController(w).Hijack(); err == nil {
				_ = conn.Close()
			}
			return
		}
		if rep.delay > 0 {
			select {
			case <-time.After(rep.delay):
			case <-r.Context().Done():
				return
			}
		}
		status, body := rep.status, rep.body
		if rep.build != nil {
			status, body = rep.build(call)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}
}

func record(r *http.Request) *RecordedRequest {
	call := &RecordedRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		PathParams:  map[string]string{},
		QueryParams: map[string]string{},
		Headers:     r.Header.Clone(),
		ReceivedAt:  time.Now(),
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		for i, key := range rc.URLParams.Keys {
			call.PathParams[key] = rc.URLParams.Values[i]
		}
	}
	for key := range r.URL.Query() {
		call.QueryParams[key] = r.URL.Query().Get(key)
	}
	call.RawBody, _ = io.ReadAll(r.Body)
	if len(call.RawBody) > 0 {
		var obj map[string]any
		if json.Unmarshal(call.RawBody, &obj) == nil {
			call.Body = obj
		}
	}
	return call
}

// CallCount is the number of calls an operation received.
func (f *FakeUpstream) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[op])
}

// AssertCalled fails the test unless op was called exactly want times.
func (f *FakeUpstream) AssertCalled(t *testing.T, op string, want int) {
	t.Helper()
	if got := f.CallCount(op); got != want {
		t.Errorf("%s %s: called %d times, want %d", f.name, op, got, want)
	}
}

// AssertNotCalled fails the test if op was called.
func (f *FakeUpstream) AssertNotCalled(t *testing.T, op string) {
	t.Helper()
	f.AssertCalled(t, op, 0)
}

// LastRequest is the latest call of op, or nil.
func (f *FakeUpstream) LastRequest(op string) *RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls[op]
	if len(calls) == 0 {
		return nil
	}
	return calls[len(calls)-1]
}

// AllRequests returns the calls of op in arrival order.
func (f *FakeUpstream) AllRequests(op string) []*RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*RecordedRequest(nil), f.calls[op]...)
}

// EngineRoutes are the journey engine operations at their default paths.
func EngineRoutes() map[string]string {
	const instance = "/api/digital-journey/instance/{externalId}"
	return map[string]string{
		"token":    "POST /oauth/token",
		"metadata": "GET /api/digital-journey/{journeyName}/metadata",
		"start":    "POST /api/digital-journey/{journeyName}/start",
		"step":     "GET " + instance + "/step",
		"next":     "POST " + instance + "/next",
		"previous": "POST " + instance + "/previous",
		"action":   "POST " + instance + "/actions/{actionId}",
		"viewItem": "GET " + instance + "/view-item/{journeyStep}",
	}
}

// OfferRoutes are the offer API operations at their default paths.
func OfferRoutes() map[string]string {
	return map[string]string{
		"token":   "POST /oauth/token",
		"search":  "POST /api/offers/search",
		"details": "GET /api/offers/{offerId}",
	}
}

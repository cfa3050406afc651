package did

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

func newTestClient(t *testing.T, h http.Handler) Client {
	return newTestClientWithRetries(t, h, 0)
}

func newTestClientWithRetries(t *testing.T, h http.Handler, retries int) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(logger.NewNop(), Config{
		APIKey:     "dXNlcjpwYXNz",
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		MaxRetries: retries,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// failFirst answers the first n requests with status and then hands off to ok.
func failFirst(calls *atomic.Int32, n int32, status int, ok http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= n {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"kind":"Transient"}`))
			return
		}
		ok(w, r)
	}
}

func TestCreateTalkPayload(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/talks" {
			t.Errorf("route: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Basic dXNlcjpwYXNz" {
			t.Errorf("auth: got=%q", got)
		}
		var p createTalkPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		if p.Script.Type != "text" || p.Script.Provider.Type != "microsoft" || p.Script.Provider.VoiceID != "en-US-NancyNeural" {
			t.Errorf("script: %+v", p.Script)
		}
		if !p.Config.Stitch || !p.Config.Fluent || p.SourceURL != "https://img/avatar.png" {
			t.Errorf("config: %+v source=%q", p.Config, p.SourceURL)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"tlk_123","status":"created"}`))
	}))

	talk, err := c.CreateTalk(context.Background(), CreateTalkRequest{
		SourceURL: "https://img/avatar.png",
		Script:    "Hello",
		VoiceID:   "en-US-NancyNeural",
		Stitch:    true,
		Fluent:    true,
	})
	if err != nil {
		t.Fatalf("CreateTalk: %v", err)
	}
	if talk.ID != "tlk_123" || talk.Status != StatusCreated {
		t.Fatalf("talk: %+v", talk)
	}
}

func TestCreateTalkRejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"kind":"InsufficientCreditsError","description":"not enough credits"}`))
	}))
	_, err := c.CreateTalk(context.Background(), CreateTalkRequest{Script: "x"})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("want 402 HTTPError got=%v", err)
	}
}

func TestGetTalkResultURLShapes(t *testing.T) {
	body := map[string]string{
		"a": `{"id":"a","status":"done","result_url":"https://cdn/a.mp4"}`,
		"b": `{"id":"b","status":"done","result":{"url":"https://cdn/b.mp4"}}`,
		"c": `{"id":"c","status":"error","error":{"kind":"FaceError","description":"no face detected"}}`,
		"d": `{"id":"d","status":"error","error":"bad image"}`,
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/talks/"):]
		_, _ = w.Write([]byte(body[id]))
	}))

	a, _ := c.GetTalk(context.Background(), "a")
	b, _ := c.GetTalk(context.Background(), "b")
	if a.AssetURL() != "https://cdn/a.mp4" || b.AssetURL() != "https://cdn/b.mp4" {
		t.Fatalf("asset urls: a=%q b=%q", a.AssetURL(), b.AssetURL())
	}
	e, _ := c.GetTalk(context.Background(), "c")
	if e.Error == nil || e.Error.String() != "FaceError: no face detected" {
		t.Fatalf("structured error: %+v", e.Error)
	}
	d, _ := c.GetTalk(context.Background(), "d")
	if d.Error == nil || d.Error.String() != "bad image" {
		t.Fatalf("string error: %+v", d.Error)
	}
}

func TestGetTalkEmptyID(t *testing.T) {
	c := newTestClient(t, http.NotFoundHandler())
	if _, err := c.GetTalk(context.Background(), "  "); err == nil {
		t.Fatalf("want error for empty id")
	}
}

func TestCreateTalkRetriesThrottling(t *testing.T) {
	var calls atomic.Int32
	c := newTestClientWithRetries(t, failFirst(&calls, 1, http.StatusTooManyRequests, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"tlk_retry","status":"created"}`))
	}), 2)

	talk, err := c.CreateTalk(context.Background(), CreateTalkRequest{Script: "Hello"})
	if err != nil {
		t.Fatalf("CreateTalk: %v", err)
	}
	if talk.ID != "tlk_retry" {
		t.Fatalf("talk id: want=tlk_retry got=%q", talk.ID)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls: want=2 got=%d", got)
	}
}

func TestCreateTalkDoesNotRepeatAfterServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClientWithRetries(t, failFirst(&calls, 1, http.StatusServiceUnavailable, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"tlk_dup","status":"created"}`))
	}), 2)

	_, err := c.CreateTalk(context.Background(), CreateTalkRequest{Script: "Hello"})
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("want 503 HTTPError got=%v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("calls: want=1 got=%d", got)
	}
}

func TestGetTalkRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClientWithRetries(t, failFirst(&calls, 1, http.StatusBadGateway, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"tlk_1","status":"started"}`))
	}), 2)

	talk, err := c.GetTalk(context.Background(), "tlk_1")
	if err != nil {
		t.Fatalf("GetTalk: %v", err)
	}
	if talk.Status != StatusStarted {
		t.Fatalf("status: want=%s got=%s", StatusStarted, talk.Status)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls: want=2 got=%d", got)
	}
}

func TestRetryablePolicy(t *testing.T) {
	dial := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	read := &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")}
	cases := []struct {
		method string
		err    error
		want   bool
	}{
		{http.MethodPost, &HTTPError{StatusCode: http.StatusTooManyRequests}, true},
		{http.MethodPost, &HTTPError{StatusCode: http.StatusRequestTimeout}, true},
		{http.MethodPost, &HTTPError{StatusCode: http.StatusInternalServerError}, false},
		{http.MethodPost, &HTTPError{StatusCode: http.StatusPaymentRequired}, false},
		{http.MethodPost, dial, true},
		{http.MethodPost, read, false},
		{http.MethodGet, &HTTPError{StatusCode: http.StatusServiceUnavailable}, true},
		{http.MethodGet, &HTTPError{StatusCode: http.StatusNotFound}, false},
		{http.MethodGet, read, true},
	}
	for _, tc := range cases {
		if got := retryable(tc.method, tc.err); got != tc.want {
			t.Fatalf("retryable(%s, %v): want=%v got=%v", tc.method, tc.err, tc.want, got)
		}
	}
}

package did

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/httpx"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

const (
	StatusCreated  = "created"
	StatusStarted  = "started"
	StatusDone     = "done"
	StatusError    = "error"
	StatusRejected = "rejected"
)

// Client is a thin wrapper over the D-ID talks API.
type Client interface {
	CreateTalk(ctx context.Context, req CreateTalkRequest) (*Talk, error)
	GetTalk(ctx context.Context, id string) (*Talk, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

type CreateTalkRequest struct {
	SourceURL     string
	Script        string
	VoiceProvider string
	VoiceID       string
	Stitch        bool
	Fluent        bool
}

type Talk struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	ResultURL string          `json:"result_url,omitempty"`
	Result    *talkAsset      `json:"result,omitempty"`
	Error     *TalkError      `json:"-"`
	RawError  json.RawMessage `json:"error,omitempty"`
}

type talkAsset struct {
	URL string `json:"url"`
}

type TalkError struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
}

func (e *TalkError) String() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Kind != "" && e.Description != "":
		return e.Kind + ": " + e.Description
	case e.Description != "":
		return e.Description
	default:
		return e.Kind
	}
}

// AssetURL is the downloadable render, whichever field the API used.
func (t *Talk) AssetURL() string {
	if t == nil {
		return ""
	}
	if u := strings.TrimSpace(t.ResultURL); u != "" {
		return u
	}
	if t.Result != nil {
		return strings.TrimSpace(t.Result.URL)
	}
	return ""
}

func (t *Talk) decodeError() {
	raw := bytes.TrimSpace(t.RawError)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return
	}
	var te TalkError
	if err := json.Unmarshal(raw, &te); err == nil && (te.Kind != "" || te.Description != "") {
		t.Error = &te
		return
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		t.Error = &TalkError{Description: s}
	}
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("d-id http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing d-id api key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.d-id.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &client{
		log:        log.With("client", "DIDClient"),
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: retries,
	}, nil
}

type createTalkPayload struct {
	SourceURL string `json:"source_url"`
	Script    struct {
		Type     string `json:"type"`
		Input    string `json:"input"`
		Provider struct {
			Type    string `json:"type"`
			VoiceID string `json:"voice_id"`
		} `json:"provider"`
	} `json:"script"`
	Config struct {
		Stitch bool `json:"stitch"`
		Fluent bool `json:"fluent"`
	} `json:"config"`
}

func (c *client) CreateTalk(ctx context.Context, req CreateTalkRequest) (*Talk, error) {
	var p createTalkPayload
	p.SourceURL = req.SourceURL
	p.Script.Type = "text"
	p.Script.Input = req.Script
	p.Script.Provider.Type = req.VoiceProvider
	if p.Script.Provider.Type == "" {
		p.Script.Provider.Type = "microsoft"
	}
	p.Script.Provider.VoiceID = req.VoiceID
	p.Config.Stitch = req.Stitch
	p.Config.Fluent = req.Fluent

	var talk Talk
	if err := c.do(ctx, http.MethodPost, "/talks", &p, &talk); err != nil {
		return nil, err
	}
	if strings.TrimSpace(talk.ID) == "" {
		return nil, fmt.Errorf("d-id create talk: response has no id")
	}
	talk.decodeError()
	return &talk, nil
}

func (c *client) GetTalk(ctx context.Context, id string) (*Talk, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("d-id get talk: empty id")
	}
	var talk Talk
	if err := c.do(ctx, http.MethodGet, "/talks/"+url.PathEscape(id), nil, &talk); err != nil {
		return nil, err
	}
	talk.decodeError()
	return &talk, nil
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var rdr io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
		rdr = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Basic "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("d-id decode error: %w", uErr)
			}
			return nil
		}
		if !retryable(method, err) || attempt == c.maxRetries {
			return err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 5*time.Second))
		c.log.Warn("D-ID request retrying",
			"method", method,
			"path", path,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

// retryable only repeats a POST the provider cannot have acted on (408, 429
// or a failed dial). A 5xx after a POST may already have created a talk.
func retryable(method string, err error) bool {
	if method != http.MethodPost {
		return httpx.IsRetryableError(err)
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusRequestTimeout || he.StatusCode == http.StatusTooManyRequests
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

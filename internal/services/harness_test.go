package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/data/repos"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/data/repos/testutil"
	types "github.com/edaptivai-netizen/edaptiv-learning/internal/domain"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/did"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/gcp"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

// ---------- object storage ----------

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	deletes []string
	signs   int
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}}
}

func objectPath(category gcp.BucketCategory, key string) string {
	return string(category) + "/" + key
}

func (b *fakeBucket) UploadStream(ctx context.Context, category gcp.BucketCategory, key string, r io.Reader, contentType string) (int64, error) {
	b.mu.Lock()
	_, exists := b.objects[objectPath(category, key)]
	b.mu.Unlock()
	if exists {
		return 0, gcp.ErrObjectExists
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, r)
	if err != nil {
		// aborted uploads are never finalised
		return n, err
	}
	b.mu.Lock()
	b.objects[objectPath(category, key)] = buf.Bytes()
	b.mu.Unlock()
	return n, nil
}

func (b *fakeBucket) DeleteFile(ctx context.Context, category gcp.BucketCategory, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deletes = append(b.deletes, key)
	delete(b.objects, objectPath(category, key))
	return nil
}

func (b *fakeBucket) DownloadFile(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[objectPath(category, key)]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBucket) Exists(ctx context.Context, category gcp.BucketCategory, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[objectPath(category, key)]
	return ok, nil
}

func (b *fakeBucket) SignedURL(ctx context.Context, category gcp.BucketCategory, key string, ttl time.Duration) (string, time.Time, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.signs++
	exp := time.Now().UTC().Add(ttl)
	return fmt.Sprintf("https://storage.test/%s?sig=%d", objectPath(category, key), b.signs), exp, nil
}

func (b *fakeBucket) videoObjects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.objects {
		if strings.HasPrefix(k, string(gcp.BucketCategoryVideo)+"/") {
			out = append(out, k)
		}
	}
	return out
}

func (b *fakeBucket) put(category gcp.BucketCategory, key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[objectPath(category, key)] = data
}

// ---------- render provider ----------

type fakeRenderProvider struct {
	mu sync.Mutex

	srv *httptest.Server

	pollsUntilDone  int
	neverFinish     bool
	failWith        string
	failFirstPolls  int
	truncateAsset   bool
	rejectCreate    bool
	asset           []byte
	useNestedResult bool

	creates    int
	polls      map[string]int
	lastScript string
}

func newFakeRenderProvider(t *testing.T) *fakeRenderProvider {
	t.Helper()
	p := &fakeRenderProvider{
		pollsUntilDone: 2,
		polls:          map[string]int{},
		asset:          bytes.Repeat([]byte("mp4!"), 4096),
	}
	p.srv = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeRenderProvider) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/talks":
		var payload struct {
			Script struct {
				Input string `json:"input"`
			} `json:"script"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		p.mu.Lock()
		p.creates++
		p.lastScript = payload.Script.Input
		id := fmt.Sprintf("tlk_%d", p.creates)
		reject := p.rejectCreate
		p.mu.Unlock()
		if reject {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"kind":"ValidationError","description":"invalid source_url"}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"id":%q,"status":"created"}`, id)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/talks/"):
		id := strings.TrimPrefix(r.URL.Path, "/talks/")
		p.mu.Lock()
		p.polls[id]++
		n := p.polls[id]
		p.mu.Unlock()
		switch {
		case n <= p.failFirstPolls:
			w.WriteHeader(http.StatusBadGateway)
		case p.neverFinish || n < p.pollsUntilDone:
			_, _ = fmt.Fprintf(w, `{"id":%q,"status":"started"}`, id)
		case p.failWith != "":
			_, _ = fmt.Fprintf(w, `{"id":%q,"status":"error","error":{"kind":"RenderError","description":%q}}`, id, p.failWith)
		case p.useNestedResult:
			_, _ = fmt.Fprintf(w, `{"id":%q,"status":"done","result":{"url":%q}}`, id, p.srv.URL+"/assets/"+id+".mp4")
		default:
			_, _ = fmt.Fprintf(w, `{"id":%q,"status":"done","result_url":%q}`, id, p.srv.URL+"/assets/"+id+".mp4")
		}

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/assets/"):
		w.Header().Set("Content-Type", "video/mp4")
		if p.truncateAsset {
			w.Header().Set("Content-Length", fmt.Sprint(len(p.asset)*2))
		} else {
			w.Header().Set("Content-Length", fmt.Sprint(len(p.asset)))
		}
		_, _ = w.Write(p.asset)

	default:
		http.NotFound(w, r)
	}
}

func (p *fakeRenderProvider) stats(id string) (creates int, polls int, script string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creates, p.polls[id], p.lastScript
}

func (p *fakeRenderProvider) client(t *testing.T) did.Client {
	t.Helper()
	c, err := did.NewClient(logger.NewNop(), did.Config{APIKey: "test-key", BaseURL: p.srv.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("did.NewClient: %v", err)
	}
	return c
}

// ---------- dispatch / notify ----------

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []GenerationJob
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, job GenerationJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordingDispatcher) all() []GenerationJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]GenerationJob(nil), d.jobs...)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []VideoStatusEvent
}

func (n *recordingNotifier) VideoStatusChanged(ctx context.Context, id uuid.UUID, status types.VideoStatus, errMsg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, VideoStatusEvent{AdaptedContentID: id, Status: status, Error: errMsg})
}

func (n *recordingNotifier) statuses() []types.VideoStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.VideoStatus, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Status)
	}
	return out
}

// ---------- harness ----------

type harness struct {
	db         *gorm.DB
	repos      repos.Repos
	bucket     *fakeBucket
	provider   *fakeRenderProvider
	dispatcher *recordingDispatcher
	notifier   *recordingNotifier
	svc        VideoGenerationService
}

func newHarness(t *testing.T, cfg PipelineConfig) *harness {
	t.Helper()
	log := logger.NewNop()
	gdb := testutil.DB(t)
	r := repos.New(gdb, log)
	bucket := newFakeBucket()
	provider := newFakeRenderProvider(t)

	presets, err := LoadAvatarPresets("", AvatarPreset{})
	if err != nil {
		t.Fatalf("LoadAvatarPresets: %v", err)
	}
	render := NewAvatarRenderClient(log, provider.client(t), presets, RenderClientConfig{
		MaxScriptChars: DefaultMaxScriptChars,
		PollInterval:   5 * time.Millisecond,
	})
	if cfg.PipelineTimeout == 0 {
		cfg.PipelineTimeout = 5 * time.Second
	}
	if cfg.RenderTimeout == 0 {
		cfg.RenderTimeout = 3 * time.Second
	}

	h := &harness{
		db:         gdb,
		repos:      r,
		bucket:     bucket,
		provider:   provider,
		dispatcher: &recordingDispatcher{},
		notifier:   &recordingNotifier{},
	}
	h.svc = NewVideoGenerationService(VideoGenerationDeps{
		Log:        log,
		Repos:      r,
		Adaptation: NewAdaptationService(log, r, NewScriptProvider(log, nil), bucket),
		Cache:      NewVideoCache(log, r.AdaptedContents, bucket),
		Render:     render,
		Streamer:   NewAssetStreamer(log, bucket, nil),
		Bucket:     bucket,
		Notifier:   h.notifier,
		Dispatcher: h.dispatcher,
		Config:     cfg,
	})
	return h
}

// runAll executes every dispatched job that has not run yet.
func (h *harness) runAll(t *testing.T, from int) []error {
	t.Helper()
	var errs []error
	for _, job := range h.dispatcher.all()[from:] {
		errs = append(errs, h.svc.Run(context.Background(), job.AdaptedContentID, job.Attempt))
	}
	return errs
}

func (h *harness) row(t *testing.T, id uuid.UUID) *types.AdaptedContent {
	t.Helper()
	var ac types.AdaptedContent
	if err := h.db.Where("id = ?", id).First(&ac).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	return &ac
}

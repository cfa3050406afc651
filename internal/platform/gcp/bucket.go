package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

type BucketCategory string

const (
	BucketCategoryVideo    BucketCategory = "video"
	BucketCategoryMaterial BucketCategory = "material"
)

var ErrObjectExists = errors.New("object already exists")

type BucketService interface {
	// UploadStream copies r into key. The object only becomes visible if the
	// whole stream was copied; a failed copy aborts the upload. Existing keys
	// are never overwritten.
	UploadStream(ctx context.Context, category BucketCategory, key string, r io.Reader, contentType string) (int64, error)
	DeleteFile(ctx context.Context, category BucketCategory, key string) error
	DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, category BucketCategory, key string) (bool, error)
	// SignedURL returns a fresh time-limited GET link and its expiry.
	SignedURL(ctx context.Context, category BucketCategory, key string, ttl time.Duration) (string, time.Time, error)
}

type bucketService struct {
	log            *logger.Logger
	storageClient  *storage.Client
	storageMode    ObjectStorageMode
	emulatorHost   string
	videoBucket    string
	materialBucket string
	publicBaseURL  string
	signingAccount string
	signingKey     []byte
	now            func() time.Time
}

func NewBucketService(log *logger.Logger, cfg ObjectStorageConfig) (BucketService, error) {
	if err := ValidateObjectStorageConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	serviceLog := log.With("service", "BucketService")

	stClient, err := newStorageClientForMode(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info(
		"Object storage initialized",
		"mode", cfg.Mode,
		"mode_source", cfg.ModeSource(),
		"emulator_host", cfg.EmulatorHost,
		"video_bucket", cfg.VideoBucket,
		"material_bucket", cfg.MaterialBucket,
	)

	return &bucketService{
		log:            serviceLog,
		storageClient:  stClient,
		storageMode:    cfg.Mode,
		emulatorHost:   strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"),
		videoBucket:    cfg.VideoBucket,
		materialBucket: cfg.MaterialBucket,
		publicBaseURL:  strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		signingAccount: strings.TrimSpace(cfg.SigningAccount),
		signingKey:     []byte(cfg.SigningKeyPEM),
		now:            time.Now,
	}, nil
}

func newStorageClientForMode(ctx context.Context, cfg ObjectStorageConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case ObjectStorageModeGCS:
		opts := ClientOptions(cfg)
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case ObjectStorageModeGCSEmulator:
		// The storage client only routes reads to an emulator via this variable.
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"))
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &ObjectStorageConfigError{Code: ObjectStorageConfigErrorInvalidMode, Value: string(cfg.Mode)}
	}
}

func (bs *bucketService) bucketName(category BucketCategory) (string, error) {
	switch category {
	case BucketCategoryVideo:
		return bs.videoBucket, nil
	case BucketCategoryMaterial:
		return bs.materialBucket, nil
	default:
		return "", fmt.Errorf("unknown bucket category: %s", category)
	}
}

func (bs *bucketService) UploadStream(ctx context.Context, category BucketCategory, key string, r io.Reader, contentType string) (int64, error) {
	name, err := bs.bucketName(category)
	if err != nil {
		return 0, err
	}
	// Cancelling the writer's context before Close abandons the resumable
	// upload, so a partial copy is never finalised into an object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	obj := bs.storageClient.Bucket(name).Object(key).If(storage.Conditions{DoesNotExist: true})
	if contentType == "" {
		contentType = contentTypeForKey(key)
	}
	w := newUploadWriter(wctx, obj, contentType)

	n, copyErr := io.Copy(w, r)
	if copyErr != nil {
		cancel()
		_ = w.Close()
		return n, fmt.Errorf("write %s/%s after %d bytes: %w", name, key, n, copyErr)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return n, fmt.Errorf("%s/%s: %w", name, key, ErrObjectExists)
		}
		return n, fmt.Errorf("finalize %s/%s: %w", name, key, err)
	}
	return n, nil
}

// uploadChunkSize bounds the memory each in-flight upload holds: the writer
// buffers a full chunk before sending it. The library default is 16 MiB.
const uploadChunkSize = 2 << 20

func newUploadWriter(ctx context.Context, obj *storage.ObjectHandle, contentType string) *storage.Writer {
	w := obj.NewWriter(ctx)
	w.ChunkSize = uploadChunkSize
	if contentType != "" {
		w.ContentType = contentType
	}
	return w
}

func isPreconditionFailed(err error) bool {
	var ge *googleapi.Error
	if errors.As(err, &ge) {
		return ge.Code == http.StatusPreconditionFailed
	}
	return false
}

func (bs *bucketService) DeleteFile(ctx context.Context, category BucketCategory, key string) error {
	name, err := bs.bucketName(category)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := bs.storageClient.Bucket(name).Object(key).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, name, err)
	}
	return nil
}

// readCloserWithCancel ties the reader's context lifetime to Close.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (bs *bucketService) DownloadFile(ctx context.Context, category BucketCategory, key string) (io.ReadCloser, error) {
	name, err := bs.bucketName(category)
	if err != nil {
		return nil, err
	}
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := bs.storageClient.Bucket(name).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open GCS reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (bs *bucketService) Exists(ctx context.Context, category BucketCategory, key string) (bool, error) {
	name, err := bs.bucketName(category)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err = bs.storageClient.Bucket(name).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s/%s: %w", name, key, err)
	}
	return true, nil
}

func (bs *bucketService) SignedURL(ctx context.Context, category BucketCategory, key string, ttl time.Duration) (string, time.Time, error) {
	name, err := bs.bucketName(category)
	if err != nil {
		return "", time.Time{}, err
	}
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", time.Time{}, fmt.Errorf("signed url: empty key")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	// V4 signatures are capped at seven days.
	if ttl > 7*24*time.Hour {
		ttl = 7 * 24 * time.Hour
	}
	expires := bs.now().Add(ttl)

	if bs.storageMode == ObjectStorageModeGCSEmulator {
		return bs.emulatorObjectMediaURL(name, key), expires, nil
	}

	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: expires,
	}
	if bs.signingAccount != "" && len(bs.signingKey) > 0 {
		opts.GoogleAccessID = bs.signingAccount
		opts.PrivateKey = bs.signingKey
	}
	u, err := bs.storageClient.Bucket(name).SignedURL(key, opts)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s/%s: %w", name, key, err)
	}
	return u, expires, nil
}

func (bs *bucketService) emulatorObjectMediaURL(bucket, key string) string {
	base := bs.publicBaseURL
	if base == "" {
		base = bs.emulatorHost
	}
	return fmt.Sprintf(
		"%s/storage/v1/b/%s/o/%s?alt=media",
		strings.TrimRight(base, "/"),
		url.PathEscape(bucket),
		url.PathEscape(key),
	)
}

func contentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	switch {
	case strings.HasSuffix(s, ".mp4"), strings.HasSuffix(s, ".m4v"):
		return "video/mp4"
	case strings.HasSuffix(s, ".webm"):
		return "video/webm"
	case strings.HasSuffix(s, ".mov"):
		return "video/quicktime"
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(s, ".txt"), strings.HasSuffix(s, ".md"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(s, ".json"):
		return "application/json"
	default:
		return ""
	}
}

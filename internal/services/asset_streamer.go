package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/domain/generation"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/gcp"
	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

// AssetStreamer copies a remote asset into the video bucket without holding
// it in memory. On failure no object is left under the destination key.
type AssetStreamer interface {
	StreamToStorage(ctx context.Context, downloadURL, destinationKey string) error
}

type assetStreamer struct {
	log        *logger.Logger
	bucket     gcp.BucketService
	httpClient *http.Client
}

// NewAssetStreamer uses httpClient for downloads; nil means a client with no
// overall timeout, bounded only by the caller's context.
func NewAssetStreamer(baseLog *logger.Logger, bucket gcp.BucketService, httpClient *http.Client) AssetStreamer {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &assetStreamer{
		log:        baseLog.With("service", "AssetStreamer"),
		bucket:     bucket,
		httpClient: httpClient,
	}
}

func (s *assetStreamer) StreamToStorage(ctx context.Context, downloadURL, destinationKey string) error {
	ctx, span := tracer.Start(ctx, "videogen.stream")
	defer span.End()

	downloadURL = strings.TrimSpace(downloadURL)
	destinationKey = strings.TrimSpace(destinationKey)
	if downloadURL == "" || destinationKey == "" {
		return generation.NewError(generation.CodeStreamFailure, "stream", "missing download url or destination key", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return generation.NewError(generation.CodeStreamFailure, "stream", "invalid download url", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return generation.NewError(generation.CodeStreamFailure, "stream", "download failed: "+err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return generation.NewError(generation.CodeStreamFailure, "stream", fmt.Sprintf("source returned HTTP %d", resp.StatusCode), nil)
	}

	var body io.Reader = resp.Body
	if resp.ContentLength > 0 {
		body = &lengthCheckedReader{r: resp.Body, want: resp.ContentLength}
	}
	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = "video/mp4"
	}

	n, err := s.bucket.UploadStream(ctx, gcp.BucketCategoryVideo, destinationKey, body, contentType)
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, gcp.ErrObjectExists) {
			s.cleanup(destinationKey)
		}
		s.log.Warn("Asset stream failed", "key", destinationKey, "bytes", n, "error", err)
		return generation.NewError(generation.CodeStreamFailure, "stream", fmt.Sprintf("copy to storage failed after %d bytes: %v", n, err), err)
	}

	span.SetAttributes(attribute.Int64("stream.bytes", n), attribute.String("stream.key", destinationKey))
	s.log.Info("Asset streamed", "key", destinationKey, "bytes", n)
	return nil
}

// cleanup runs on its own context so an expired pipeline deadline does not
// skip it.
func (s *assetStreamer) cleanup(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.bucket.DeleteFile(ctx, gcp.BucketCategoryVideo, key); err != nil {
		s.log.Warn("Best-effort delete of partial asset failed", "key", key, "error", err)
	}
}

// lengthCheckedReader reports a short body as an error instead of EOF.
type lengthCheckedReader struct {
	r    io.Reader
	want int64
	got  int64
}

func (l *lengthCheckedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.got += int64(n)
	if errors.Is(err, io.EOF) && l.got < l.want {
		return n, fmt.Errorf("%w: read %d of %d bytes", io.ErrUnexpectedEOF, l.got, l.want)
	}
	return n, err
}

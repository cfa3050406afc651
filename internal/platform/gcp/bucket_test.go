package gcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

func TestSignedURLEmulatorIsFreshEachCall(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bs := &bucketService{
		storageMode:    ObjectStorageModeGCSEmulator,
		emulatorHost:   "http://fake-gcs:4443",
		publicBaseURL:  "http://localhost:4443",
		videoBucket:    "edaptiv-videos",
		materialBucket: "edaptiv-materials",
		now:            func() time.Time { return now },
	}

	u, exp, err := bs.SignedURL(context.Background(), BucketCategoryVideo, "/videos/m/a b.mp4", 10*time.Minute)
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	want := "http://localhost:4443/storage/v1/b/edaptiv-videos/o/videos%2Fm%2Fa%20b.mp4?alt=media"
	if u != want {
		t.Fatalf("url: want=%q got=%q", want, u)
	}
	if !exp.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("expiry: want=%s got=%s", now.Add(10*time.Minute), exp)
	}

	now = now.Add(time.Minute)
	_, exp2, _ := bs.SignedURL(context.Background(), BucketCategoryVideo, "videos/m/a b.mp4", 10*time.Minute)
	if !exp2.After(exp) {
		t.Fatalf("second call must produce a later expiry: %s !> %s", exp2, exp)
	}
}

func TestSignedURLRejectsBadInput(t *testing.T) {
	bs := &bucketService{storageMode: ObjectStorageModeGCSEmulator, emulatorHost: "http://e", videoBucket: "v", materialBucket: "m", now: time.Now}
	if _, _, err := bs.SignedURL(context.Background(), BucketCategoryVideo, "  ", time.Minute); err == nil {
		t.Fatalf("empty key: want error")
	}
	if _, _, err := bs.SignedURL(context.Background(), BucketCategory("avatar"), "k", time.Minute); err == nil || !strings.Contains(err.Error(), "unknown bucket category") {
		t.Fatalf("unknown category: got=%v", err)
	}
}

func TestSignedURLDefaultsAndCapsTTL(t *testing.T) {
	now := time.Now()
	bs := &bucketService{storageMode: ObjectStorageModeGCSEmulator, emulatorHost: "http://e", videoBucket: "v", materialBucket: "m", now: func() time.Time { return now }}
	_, exp, _ := bs.SignedURL(context.Background(), BucketCategoryVideo, "k.mp4", 0)
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("default ttl: want 1h got=%s", exp.Sub(now))
	}
	_, exp, _ = bs.SignedURL(context.Background(), BucketCategoryVideo, "k.mp4", 30*24*time.Hour)
	if !exp.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("capped ttl: want 168h got=%s", exp.Sub(now))
	}
}

func TestContentTypeForKey(t *testing.T) {
	cases := map[string]string{
		"videos/a.MP4":       "video/mp4",
		"videos/a.webm?x=1":  "video/webm",
		"materials/notes.md": "text/plain; charset=utf-8",
		"materials/blob":     "",
	}
	for key, want := range cases {
		if got := contentTypeForKey(key); got != want {
			t.Fatalf("contentTypeForKey(%q): want=%q got=%q", key, want, got)
		}
	}
}

func TestUploadWriterChunkSize(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client, err := storage.NewClient(ctx, option.WithoutAuthentication(), option.WithEndpoint("http://127.0.0.1:1/storage/v1/"))
	if err != nil {
		t.Fatalf("storage client: %v", err)
	}
	defer client.Close()

	obj := client.Bucket("edaptiv-videos").Object("videos/m/a.mp4")
	w := newUploadWriter(ctx, obj, "video/mp4")
	if w.ChunkSize != uploadChunkSize {
		t.Fatalf("chunk size: want=%d got=%d", uploadChunkSize, w.ChunkSize)
	}
	if w.ContentType != "video/mp4" {
		t.Fatalf("content type: want=video/mp4 got=%q", w.ContentType)
	}
}

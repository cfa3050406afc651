package temporalx

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/edaptivai-netizen/edaptiv-learning/internal/platform/logger"
)

func TestClampBackoff(t *testing.T) {
	cases := []struct {
		base, max time.Duration
		attempt   int
		want      time.Duration
	}{
		{250 * time.Millisecond, 5 * time.Second, 1, 250 * time.Millisecond},
		{250 * time.Millisecond, 5 * time.Second, 3, time.Second},
		{250 * time.Millisecond, 5 * time.Second, 10, 5 * time.Second},
		{0, 0, 2, 500 * time.Millisecond},
		{time.Second, 0, 4, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := clampBackoff(tc.base, tc.max, tc.attempt); got != tc.want {
			t.Fatalf("clampBackoff(%s,%s,%d): want=%s got=%s", tc.base, tc.max, tc.attempt, tc.want, got)
		}
	}
}

func TestIsRetryableRPC(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":         {nil, false},
		"unavailable": {status.Error(codes.Unavailable, "down"), true},
		"exhausted":   {status.Error(codes.ResourceExhausted, "slow down"), true},
		"denied":      {status.Error(codes.PermissionDenied, "no"), false},
		"deadline":    {fmt.Errorf("dial: %w", context.DeadlineExceeded), true},
		"plain":       {errors.New("boom"), false},
	}
	for name, tc := range cases {
		if got := isRetryableRPC(tc.err); got != tc.want {
			t.Fatalf("%s: want=%v got=%v", name, tc.want, got)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{NamespaceRetentionDays: 900}.Normalized()
	if cfg.Enabled() {
		t.Fatalf("empty address should disable temporal")
	}
	if cfg.Namespace != "edaptiv" || cfg.TaskQueue != "edaptiv-video" {
		t.Fatalf("names: %+v", cfg)
	}
	if cfg.NamespaceRetentionDays != 365 || cfg.DialTimeout != 5*time.Second {
		t.Fatalf("limits: %+v", cfg)
	}
}

func TestNewClientDisabled(t *testing.T) {
	c, err := NewClient(context.Background(), logger.NewNop(), Config{})
	if err != nil || c != nil {
		t.Fatalf("want nil client, got=%v err=%v", c, err)
	}
}

func TestLoadTLSConfigRequiresPair(t *testing.T) {
	if _, err := loadTLSConfig(Config{ClientCAPath: "/tmp/ca.pem"}); err == nil {
		t.Fatalf("want error without cert/key")
	}
}

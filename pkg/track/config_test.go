package track

import (
	"errors"
	"testing"
	"time"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(Params{
		UseCaseID:        "uc",
		PendingStatus:    0,
		InProgressStatus: 3,
		FailedStatus:     6,
		SucceededStatus:  9,
		IgnoredStatus:    10,
	})
	if err != nil {
		t.Fatalf("new config: %v", err)
	}
	if cfg.Sep() != "____" {
		t.Fatalf("sep: %q", cfg.Sep())
	}
	if cfg.MaxRetry() != 3 {
		t.Fatalf("max retry: %d", cfg.MaxRetry())
	}
	if cfg.LockExpire() != 300*time.Second {
		t.Fatalf("lock expire: %v", cfg.LockExpire())
	}
	for _, status := range cfg.Statuses() {
		if n, ok := cfg.ShardCount(status); !ok || n != 1 {
			t.Fatalf("shard count for %d: %d %v", status, n, ok)
		}
	}
}

func TestNewConfigRejectsDuplicateStatus(t *testing.T) {
	_, err := NewConfig(Params{
		UseCaseID:        "uc",
		PendingStatus:    0,
		InProgressStatus: 3,
		FailedStatus:     3,
		SucceededStatus:  9,
		IgnoredStatus:    10,
	})
	if !errors.Is(err, ErrDuplicateStatusCode) {
		t.Fatalf("want ErrDuplicateStatusCode, got %v", err)
	}
}

func TestNewConfigRequiresUseCaseID(t *testing.T) {
	_, err := NewConfig(Params{
		PendingStatus:    0,
		InProgressStatus: 3,
		FailedStatus:     6,
		SucceededStatus:  9,
		IgnoredStatus:    10,
	})
	if err == nil {
		t.Fatalf("want error for empty use case id")
	}
}

func TestStatusNames(t *testing.T) {
	cfg := testConfig(t)
	if cfg.StatusName(9) != "succeeded" {
		t.Fatalf("name: %q", cfg.StatusName(9))
	}
	if code, ok := cfg.StatusCode("failed"); !ok || code != 6 {
		t.Fatalf("code: %d %v", code, ok)
	}
	if _, ok := cfg.StatusCode("nope"); ok {
		t.Fatalf("unexpected code for unknown name")
	}
}

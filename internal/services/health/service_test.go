package health

import (
	"context"
	"errors"
	"testing"
)

func TestStatusWithoutChecks(t *testing.T) {
	ok, checks := NewService().Status(context.Background())
	if !ok || len(checks) != 0 {
		t.Fatalf("expected healthy with no checks, got %v %v", ok, checks)
	}
}

func TestStatusReportsFailures(t *testing.T) {
	svc := NewService()
	svc.Register("database", func(context.Context) error { return nil })
	svc.Register("cache", func(context.Context) error { return errors.New("dial tcp: refused") })
	svc.Register("ignored", nil)

	ok, checks := svc.Status(context.Background())
	if ok {
		t.Fatalf("expected unhealthy")
	}
	if checks["database"] != "ok" || checks["cache"] != "dial tcp: refused" {
		t.Fatalf("unexpected checks: %v", checks)
	}
	if _, present := checks["ignored"]; present {
		t.Fatalf("nil checks must not be registered")
	}
}

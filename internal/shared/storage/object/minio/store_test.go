package minio

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"

	"resume-revamp/internal/shared/storage/object"
)

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	if _, err := New(context.Background(), Options{Bucket: "resumes"}); err == nil {
		t.Fatal("expected error without endpoint")
	}
	if _, err := New(context.Background(), Options{Endpoint: "localhost:9000"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestMapErrorNotFound(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
	if err := mapError("rewrites/x/package.zip", missing); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}
	if err := mapError("k", denied); errors.Is(err, object.ErrNotFound) {
		t.Fatalf("access denied must not map to ErrNotFound: %v", err)
	}
}

package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewBucket_Disabled(t *testing.T) {
	if (S3Config{}).Enabled() {
		t.Fatal("Enabled() = true without a bucket")
	}
	if _, err := NewBucket(context.Background(), S3Config{}); err == nil {
		t.Fatal("NewBucket() accepted an empty bucket")
	}
}

func TestBucket_PutObject(t *testing.T) {
	var method, path, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path, contentType = r.Method, r.URL.Path, r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBucket(context.Background(), S3Config{
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "reports",
	})
	if err != nil {
		t.Fatalf("NewBucket() error = %v", err)
	}
	if err := b.PutObject(context.Background(), "regression/r1.json", []byte(`{}`), "application/json"); err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if method != http.MethodPut || path != "/reports/regression/r1.json" || contentType != "application/json" {
		t.Fatalf("request = %s %s (%s)", method, path, contentType)
	}
}

package precompute

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"afc-coordinator/pkg/rcache"
)

func TestComputeSucceedsOn2xx(t *testing.T) {
	var gotBody []byte
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(srv.URL+"/inquiry", time.Second)
	err := client.Compute(context.Background(), &rcache.Entry{
		Fingerprint: "fp-1",
		Request:     []byte(`{"requestId":"r1"}`),
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if string(gotBody) != `{"requestId":"r1"}` {
		t.Fatalf("expected request body to be forwarded verbatim, got %q", gotBody)
	}
	if gotQuery != "nocache=1" {
		t.Fatalf("expected nocache=1 query param, got %q", gotQuery)
	}
}

func TestComputeFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	client := New(srv.URL+"/inquiry", time.Second)
	err := client.Compute(context.Background(), &rcache.Entry{Fingerprint: "fp-1", Request: []byte(`{}`)})

	if err == nil {
		t.Fatalf("expected an error on a 500 response")
	}
}

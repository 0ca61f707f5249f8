package http

import (
	"bytes"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rescale/cloudfm/internal/logging"
)

func TestNewRetryableClient_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "payload" {
			t.Errorf("attempt %d got body %q", hits.Load()+1, body)
		}
		if hits.Add(1) < 3 {
			w.WriteHeader(nethttp.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(nethttp.StatusCreated)
	}))
	defer srv.Close()

	var logs bytes.Buffer
	client := NewRetryableClient(srv.Client(), 3, logging.NewLogger(logging.Options{Console: &logs}))

	req, err := nethttp.NewRequest(nethttp.MethodPut, srv.URL+"/blob", strings.NewReader("payload"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != nethttp.StatusCreated {
		t.Errorf("expected 201, got %d", resp.StatusCode)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestNewRetryableClient_NilArgs(t *testing.T) {
	if NewRetryableClient(nil, 1, nil) == nil {
		t.Fatal("expected a client")
	}
}

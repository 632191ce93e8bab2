package renderer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clipforge/internal/pkg/errors"
	"clipforge/internal/render"
)

func TestStartRenderSuccess(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/render" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"render_id":"lambda-xyz"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	handle, err := c.StartRender(context.Background(), []byte(`{"video_params":{"text":"hi"}}`))
	if err != nil {
		t.Fatalf("StartRender: %v", err)
	}
	if handle != "lambda-xyz" {
		t.Fatalf("expected handle=lambda-xyz, got %q", handle)
	}
	if gotBody["video_params"] == nil {
		t.Fatalf("params not forwarded, got %v", gotBody)
	}
}

func TestStartRenderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"message":"unsupported codec"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.StartRender(context.Background(), []byte(`{}`))

	var subErr *render.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected *render.SubmissionError, got %T: %v", err, err)
	}
	if !strings.Contains(subErr.Message, "unsupported codec") {
		t.Fatalf("expected server message in error, got %q", subErr.Message)
	}
}

func TestStartRenderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse all connections

	c := NewClient(srv.URL)
	_, err := c.StartRender(context.Background(), []byte(`{}`))

	var subErr *render.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected *render.SubmissionError, got %T: %v", err, err)
	}
	if !strings.Contains(subErr.Message, "renderer unreachable") {
		t.Fatalf("expected unreachable message, got %q", subErr.Message)
	}
}

func TestPollProgressMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/progress/lambda-xyz" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"done":true,"overall_progress":1.0,"output_file":"https://bucket/out.mp4"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	prog, err := c.PollProgress(context.Background(), "lambda-xyz")
	if err != nil {
		t.Fatalf("PollProgress: %v", err)
	}
	if !prog.Done || prog.ResultLocation != "https://bucket/out.mp4" {
		t.Fatalf("unexpected progress %#v", prog)
	}
}

func TestPollProgressFatalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"done":false,"fatal_error_encountered":true,"error_message":"bad input media"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	prog, err := c.PollProgress(context.Background(), "h")
	if err != nil {
		t.Fatalf("PollProgress: %v", err)
	}
	if !prog.FatalError || prog.ErrorMessage != "bad input media" {
		t.Fatalf("unexpected progress %#v", prog)
	}
}

func TestPollProgressTransportError(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer srv.Close()

		c := NewClient(srv.URL)
		_, err := c.PollProgress(context.Background(), "h")

		var tErr *render.TransportError
		if !errors.As(err, &tErr) {
			t.Fatalf("expected *render.TransportError, got %T: %v", err, err)
		}
		if !strings.Contains(tErr.Error(), "502") {
			t.Fatalf("expected status in error, got %q", tErr.Error())
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		c := NewClient(srv.URL)
		_, err := c.PollProgress(context.Background(), "h")

		var tErr *render.TransportError
		if !errors.As(err, &tErr) {
			t.Fatalf("expected *render.TransportError, got %T: %v", err, err)
		}
	})
}

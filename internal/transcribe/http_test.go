package transcribe

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTempAudio(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "chunk.audio")
	if err := os.WriteFile(path, []byte("fake-audio-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestHTTPClient_Transcribe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"segments":[{"start":0,"end":1.5,"text":"hello"}],"language":"en"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.Client(), srv.URL, 600, 3, discardLogger())
	resp, err := client.Transcribe(context.Background(), writeTempAudio(t), 10, 0)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(resp.Segments) != 1 || resp.Segments[0].Text != "hello" {
		t.Errorf("segments = %+v", resp.Segments)
	}
	if resp.Language != "en" {
		t.Errorf("language = %q, want en", resp.Language)
	}
}

func TestHTTPClient_Transcribe_RetriesOnTransientThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"segments":[],"language":"en"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.Client(), srv.URL, 6000, 5, discardLogger())
	if _, err := client.Transcribe(context.Background(), writeTempAudio(t), 10, 0); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestHTTPClient_Transcribe_PermanentFailureDoesNotRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.Client(), srv.URL, 6000, 5, discardLogger())
	if _, err := client.Transcribe(context.Background(), writeTempAudio(t), 10, 0); err == nil {
		t.Fatal("expected an error for a 400 response")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a permanent failure, got %d", attempts)
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shikkhasathi/offline/internal/domain"
)

func TestDiscoverContentSendsSelectionAndToken(t *testing.T) {
	var gotPath, gotAuth string
	var gotSel domain.ContentSelection

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotSel); err != nil {
			t.Errorf("failed to decode selection: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []domain.DownloadableContent{
				{ID: "c-1", Subject: "physics", Grade: 9, Title: "Motion", Size: 1024, Language: "bangla"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "tok-123", time.Second)
	content, err := client.DiscoverContent(context.Background(), domain.ContentSelection{
		Subject: "physics", Grade: 9, Language: "bangla",
	})
	if err != nil {
		t.Fatalf("DiscoverContent failed: %v", err)
	}

	if gotPath != "/content/discover" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotSel.Subject != "physics" || gotSel.Grade != 9 {
		t.Fatalf("unexpected selection %+v", gotSel)
	}
	if len(content) != 1 || content[0].ID != "c-1" || content[0].Size != 1024 {
		t.Fatalf("unexpected content %+v", content)
	}
}

func TestFetchContentResumesWithRangeHeader(t *testing.T) {
	body := "0123456789"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=4-" {
			t.Errorf("expected range header, got %q", r.Header.Get("Range"))
		}
		w.WriteHeader(http.StatusPartialContent)
		_, _ = io.WriteString(w, body[4:])
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	rc, err := client.FetchContent(context.Background(), "c-1", 4)
	if err != nil {
		t.Fatalf("FetchContent failed: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != "456789" {
		t.Fatalf("expected resumed tail, got %q", got)
	}
}

func TestFetchContentRejectsIgnoredRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Full 200 response despite the range request.
		_, _ = io.WriteString(w, "entire body from scratch")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	if _, err := client.FetchContent(context.Background(), "c-1", 4); err == nil {
		t.Fatalf("expected error when server ignores range request")
	}
}

func TestSubmitQuizAttemptPropagatesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "attempt invalid", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	err := client.SubmitQuizAttempt(context.Background(), &domain.QuizAttempt{ID: "a-1"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", apiErr.StatusCode)
	}
	if apiErr.IsRetryable() {
		t.Fatalf("4xx rejection must not be retryable")
	}
}

func TestAPIErrorRetryability(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}
	for _, tc := range cases {
		err := &APIError{StatusCode: tc.status}
		if err.IsRetryable() != tc.retryable {
			t.Errorf("status %d: retryable = %v, want %v", tc.status, err.IsRetryable(), tc.retryable)
		}
	}
}

func TestPingChecksHealthEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", time.Second)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	if gotPath != "/health" {
		t.Fatalf("unexpected path %q", gotPath)
	}

	srv.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping to fail against closed server")
	}
}

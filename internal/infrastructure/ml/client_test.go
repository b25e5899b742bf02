package ml

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnalyzePostsText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/classify" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["text"] != "great crew" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"qualityMultiplier":1.2,"keywords":["crew","fast"]}`))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL+"/", "k", 0).Analyze(context.Background(), "great crew")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.QualityMultiplier != 1.2 || len(got.Keywords) != 2 {
		t.Fatalf("unexpected analysis %+v", got)
	}
}

func TestAnalyzeStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, "", 0).Analyze(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestAnalyzeWithoutEndpointIsNeutral(t *testing.T) {
	t.Parallel()

	got, err := NewClient("", "", 0).Analyze(context.Background(), "x")
	if err != nil || got.QualityMultiplier != 1 {
		t.Fatalf("expected neutral analysis, got %+v err=%v", got, err)
	}
}

package scanner

import (
	"context"
	"errors"
	"testing"

	"ReviewRanker/internal/domain"
)

type namedScanner string

func (n namedScanner) Name() string { return string(n) }

func (n namedScanner) Scan(context.Context, Request) ([]domain.ReviewRecord, error) {
	return nil, nil
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	reg.Register(namedScanner("html"))
	reg.Register(namedScanner("api"))

	got, err := reg.Resolve("api")
	if err != nil {
		t.Fatalf("resolve api: %v", err)
	}
	if got.Name() != "api" {
		t.Fatalf("unexpected scanner %s", got.Name())
	}

	if _, err := reg.Resolve("rss"); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "api" || names[1] != "html" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestRequestOption(t *testing.T) {
	t.Parallel()

	req := Request{Options: map[string]string{"maxPages": "4", "empty": ""}}
	if got := req.Option("maxPages", "10"); got != "4" {
		t.Fatalf("expected 4, got %s", got)
	}
	if got := req.Option("empty", "x"); got != "x" {
		t.Fatalf("expected fallback for empty option, got %s", got)
	}
	if got := req.Option("missing", "y"); got != "y" {
		t.Fatalf("expected fallback, got %s", got)
	}
}

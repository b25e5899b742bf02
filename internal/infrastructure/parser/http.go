package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"ReviewRanker/internal/domain"
)

const userAgent = "ReviewRanker/1.0"

// get performs a GET and maps transport failures and non-200 responses to
// *domain.SourceError. The caller closes the body.
func get(ctx context.Context, client *http.Client, placeID, target string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &domain.SourceError{PlaceID: placeID, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &domain.SourceError{
			PlaceID:    placeID,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s: %s", resp.Status, snippet),
		}
	}
	return resp, nil
}

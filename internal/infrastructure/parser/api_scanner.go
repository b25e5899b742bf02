package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/scanner"
)

const defaultMaxPages = 10

// APIScanner pages through the provider's JSON review endpoint.
type APIScanner struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewAPIScanner wires an HTTP client; a nil client gets a 20s timeout.
func NewAPIScanner(client *http.Client, baseURL, apiKey string) *APIScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &APIScanner{client: client, baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey}
}

// Name identifies the strategy inside the registry.
func (a *APIScanner) Name() string {
	return "api"
}

type apiPage struct {
	Reviews       []apiReview `json:"reviews"`
	NextPageToken string      `json:"nextPageToken"`
}

type apiReview struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Scan fetches every review page of the place, up to the maxPages option.
func (a *APIScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.ReviewRecord, error) {
	if req.PlaceID == "" {
		return nil, fmt.Errorf("api scanner: empty place id")
	}
	maxPages, err := strconv.Atoi(req.Option("maxPages", strconv.Itoa(defaultMaxPages)))
	if err != nil || maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	header := http.Header{"Accept": []string{"application/json"}}
	if a.apiKey != "" {
		header.Set("Authorization", "Bearer "+a.apiKey)
	}

	var (
		records []domain.ReviewRecord
		token   string
	)
	for page := 0; page < maxPages; page++ {
		target := a.baseURL + "/places/" + url.PathEscape(req.PlaceID) + "/reviews"
		if token != "" {
			target += "?pageToken=" + url.QueryEscape(token)
		}

		body, err := a.fetchPage(ctx, req.PlaceID, target, header)
		if err != nil {
			return nil, err
		}
		for _, r := range body.Reviews {
			records = append(records, domain.ReviewRecord{
				SourceReviewID: r.ID,
				Source:         req.Source,
				PlaceID:        req.PlaceID,
				AuthorName:     strings.TrimSpace(r.Author),
				Rating:         r.Rating,
				Comment:        strings.TrimSpace(r.Text),
				CreatedAt:      r.CreatedAt,
			})
		}
		if body.NextPageToken == "" {
			break
		}
		token = body.NextPageToken
	}
	return records, nil
}

func (a *APIScanner) fetchPage(ctx context.Context, placeID, target string, header http.Header) (apiPage, error) {
	resp, err := get(ctx, a.client, placeID, target, header)
	if err != nil {
		return apiPage{}, err
	}
	defer resp.Body.Close()

	var page apiPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return apiPage{}, fmt.Errorf("decode reviews page: %w", err)
	}
	return page, nil
}

package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ReviewRanker/internal/domain"
	"ReviewRanker/internal/scanner"
)

var ratingExpr = regexp.MustCompile(`[1-5]`)

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2 Jan 2006", "January 2, 2006"}

// ListingScanner scrapes review cards from paginated HTML listing pages. Every
// selector can be overridden per deployment through request options.
type ListingScanner struct {
	client  *http.Client
	baseURL string
}

// NewListingScanner wires an HTTP client; a nil client gets a 20s timeout.
func NewListingScanner(client *http.Client, baseURL string) *ListingScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ListingScanner{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Name identifies the strategy inside the registry.
func (l *ListingScanner) Name() string {
	return "html"
}

type selectors struct {
	item    string
	id      string
	author  string
	rating  string
	comment string
	date    string
	next    string
}

func selectorsFor(req scanner.Request) selectors {
	return selectors{
		item:    req.Option("itemSelector", ".review"),
		id:      req.Option("idAttr", "data-review-id"),
		author:  req.Option("authorSelector", ".review-author"),
		rating:  req.Option("ratingSelector", ".review-rating"),
		comment: req.Option("commentSelector", ".review-text"),
		date:    req.Option("dateSelector", "time"),
		next:    req.Option("nextSelector", "a[rel=next]"),
	}
}

// Scan walks the listing from the first page following next links.
func (l *ListingScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.ReviewRecord, error) {
	if req.PlaceID == "" {
		return nil, fmt.Errorf("html scanner: empty place id")
	}
	maxPages, err := strconv.Atoi(req.Option("maxPages", strconv.Itoa(defaultMaxPages)))
	if err != nil || maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	sel := selectorsFor(req)

	pageURL := l.baseURL + "/places/" + url.PathEscape(req.PlaceID) + "/reviews"
	seen := map[string]struct{}{}
	var records []domain.ReviewRecord

	for page := 0; page < maxPages && pageURL != ""; page++ {
		doc, err := l.fetchDocument(ctx, req.PlaceID, pageURL)
		if err != nil {
			return nil, err
		}

		doc.Find(sel.item).Each(func(_ int, item *goquery.Selection) {
			rec, ok := parseReview(item, sel)
			if !ok {
				return
			}
			if _, dup := seen[rec.SourceReviewID]; dup {
				return
			}
			seen[rec.SourceReviewID] = struct{}{}
			rec.Source = req.Source
			rec.PlaceID = req.PlaceID
			records = append(records, rec)
		})

		pageURL = nextPage(doc, sel.next, pageURL)
	}
	return records, nil
}

func (l *ListingScanner) fetchDocument(ctx context.Context, placeID, pageURL string) (*goquery.Document, error) {
	resp, err := get(ctx, l.client, placeID, pageURL, http.Header{"Accept": []string{"text/html"}})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func parseReview(item *goquery.Selection, sel selectors) (domain.ReviewRecord, bool) {
	id, _ := item.Attr(sel.id)
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.ReviewRecord{}, false
	}

	rating := 0
	ratingNode := item.Find(sel.rating).First()
	if v, ok := ratingNode.Attr("data-rating"); ok {
		rating, _ = strconv.Atoi(strings.TrimSpace(v))
	} else if v, ok := item.Attr("data-rating"); ok {
		rating, _ = strconv.Atoi(strings.TrimSpace(v))
	} else if m := ratingExpr.FindString(ratingNode.Text()); m != "" {
		rating, _ = strconv.Atoi(m)
	}

	return domain.ReviewRecord{
		SourceReviewID: id,
		AuthorName:     strings.TrimSpace(item.Find(sel.author).First().Text()),
		Rating:         rating,
		Comment:        strings.TrimSpace(item.Find(sel.comment).First().Text()),
		CreatedAt:      parseDate(item.Find(sel.date).First()),
	}, true
}

func parseDate(node *goquery.Selection) time.Time {
	raw, ok := node.Attr("datetime")
	if !ok {
		raw = node.Text()
	}
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func nextPage(doc *goquery.Document, selector, current string) string {
	href, ok := doc.Find(selector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	base, err := url.Parse(current)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	next := base.ResolveReference(ref).String()
	if next == current {
		return ""
	}
	return next
}

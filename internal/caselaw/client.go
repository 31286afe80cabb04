// Package caselaw talks to the external case-law database used to search and
// verify German court decisions.
package caselaw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const (
	defaultBaseURL     = "https://de.openlegaldata.io/api"
	defaultHTTPTimeout = 60 * time.Second
	defaultSearchLimit = 5
	maxSearchLimit     = 20
	snippetChars       = 1500
)

var (
	ErrNotConfigured = errors.New("case-law client not configured")
	ErrCaseNotFound  = errors.New("case not found")
)

// Case is a court decision converted to plain text.
type Case struct {
	ID         int64  `json:"id"`
	FileNumber string `json:"file_number"`
	Court      string `json:"court"`
	Date       string `json:"date"`
	URL        string `json:"url,omitempty"`
	Text       string `json:"text"`
}

// SearchOptions narrows a keyword search.
type SearchOptions struct {
	Court string
	Limit int
}

type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Client calls the case-law REST API. Deadlines come from the caller's context.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &Client{baseURL: baseURL, apiKey: cfg.APIKey, http: httpClient}
}

type apiCase struct {
	ID         int64  `json:"id"`
	Slug       string `json:"slug"`
	FileNumber string `json:"file_number"`
	Date       string `json:"date"`
	Content    string `json:"content"`
	Court      struct {
		Name string `json:"name"`
	} `json:"court"`
}

type apiCaseList struct {
	Count   int       `json:"count"`
	Results []apiCase `json:"results"`
}

// Search runs a keyword search and returns short plain-text excerpts.
func (c *Client) Search(ctx context.Context, query string, opts SearchOptions) ([]Case, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	params := url.Values{}
	params.Set("text", query)
	params.Set("page_size", strconv.Itoa(limit))
	if opts.Court != "" {
		params.Set("court", opts.Court)
	}

	var list apiCaseList
	if err := c.get(ctx, "/cases/search/", params, &list); err != nil {
		return nil, err
	}

	cases := make([]Case, 0, len(list.Results))
	for _, item := range list.Results {
		cs, err := c.toCase(item)
		if err != nil {
			return nil, err
		}
		cs.Text = truncate(cs.Text, snippetChars)
		cases = append(cases, cs)
		if len(cases) == limit {
			break
		}
	}
	return cases, nil
}

// Fetch returns the full decision for a file number ("Aktenzeichen").
func (c *Client) Fetch(ctx context.Context, fileNumber string) (*Case, error) {
	item, err := c.lookup(ctx, fileNumber)
	if err != nil {
		return nil, err
	}
	cs, err := c.toCase(*item)
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// Exists reports whether the file number is known to the database.
func (c *Client) Exists(ctx context.Context, fileNumber string) (bool, error) {
	_, err := c.lookup(ctx, fileNumber)
	if errors.Is(err, ErrCaseNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) lookup(ctx context.Context, fileNumber string) (*apiCase, error) {
	fileNumber = NormalizeFileNumber(fileNumber)
	if fileNumber == "" {
		return nil, fmt.Errorf("file number is required")
	}

	params := url.Values{}
	params.Set("file_number", fileNumber)

	var list apiCaseList
	if err := c.get(ctx, "/cases/", params, &list); err != nil {
		return nil, err
	}
	for i := range list.Results {
		if NormalizeFileNumber(list.Results[i].FileNumber) == fileNumber {
			return &list.Results[i], nil
		}
	}
	return nil, ErrCaseNotFound
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create case-law request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Token "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("case-law request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrCaseNotFound
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("case-law request failed with status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode case-law response: %w", err)
	}
	return nil
}

func (c *Client) toCase(item apiCase) (Case, error) {
	text, err := htmlToText(item.Content)
	if err != nil {
		return Case{}, fmt.Errorf("convert case %d: %w", item.ID, err)
	}
	cs := Case{
		ID:         item.ID,
		FileNumber: strings.TrimSpace(item.FileNumber),
		Court:      item.Court.Name,
		Date:       item.Date,
		Text:       text,
	}
	if item.Slug != "" {
		cs.URL = strings.TrimSuffix(c.baseURL, "/api") + "/case/" + item.Slug
	}
	return cs, nil
}

var blankLines = regexp.MustCompile(`\n{3,}`)

func htmlToText(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	md, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(md, "\n\n")), nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// NormalizeFileNumber collapses whitespace so "VI  ZR 123/21" and "VI ZR 123/21" compare equal.
func NormalizeFileNumber(fileNumber string) string {
	return strings.Join(strings.Fields(fileNumber), " ")
}

// Package scraper is the HTTP client for the external scraping backend.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Backend endpoints
const (
	EndpointDiscover = "/scrape-url"
	EndpointPage     = "/scrape-page"
	EndpointPDF      = "/scrape-pdf"
	EndpointPDFFile  = "/scrape-pdf-file"
)

// maxErrorBody caps how much of a failed response is kept in error text
const maxErrorBody = 2048

// ErrInvalidURL is returned for seed URLs that are not absolute http(s) URLs
var ErrInvalidURL = errors.New("invalid seed url")

// StatusError is a non-2xx answer from the backend
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("scraper %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("scraper %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// DiscoveryError means a seed URL could not be expanded into links.
// Status is the backend HTTP status, 0 for network and decode failures.
type DiscoveryError struct {
	URL    string
	Status int
	Err    error
}

func (e *DiscoveryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("link discovery failed for %s (status %d): %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("link discovery failed for %s: %v", e.URL, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Links is the discovery result, passed through from the backend in order
type Links struct {
	HTML []string
	PDF  []string
}

// Total returns the number of links of both kinds
func (l *Links) Total() int {
	return len(l.HTML) + len(l.PDF)
}

type discoverResponse struct {
	PDFLinks []string `json:"pdf_links"`
	AllLinks []string `json:"all_links"`
}

// PDFFileResponse is the backend's answer to a single-file upload
type PDFFileResponse struct {
	Message string `json:"message"`
	Pages   int    `json:"pages"`
}

// Client talks to the scraping backend. Timeouts are applied per call
// through the request context so one client can serve short and long calls.
type Client struct {
	BaseURL          string
	HTTPClient       *http.Client
	DiscoveryTimeout time.Duration
}

// NewClient creates a new scraping backend client
func NewClient(baseURL string, discoveryTimeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://0.0.0.0:7860"
	}
	return &Client{
		BaseURL:          strings.TrimRight(baseURL, "/"),
		HTTPClient:       &http.Client{},
		DiscoveryTimeout: discoveryTimeout,
	}
}

// ValidateSeedURL accepts only absolute http and https URLs with a host
func ValidateSeedURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// DiscoverLinks expands a seed URL into its html and pdf links.
// Every failure is a *DiscoveryError.
func (c *Client) DiscoverLinks(ctx context.Context, seedURL string) (*Links, error) {
	if err := ValidateSeedURL(seedURL); err != nil {
		return nil, &DiscoveryError{URL: seedURL, Err: err}
	}

	if c.DiscoveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.DiscoveryTimeout)
		defer cancel()
	}

	var out discoverResponse
	if err := c.postJSON(ctx, EndpointDiscover, map[string]any{"url": seedURL}, &out); err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return nil, &DiscoveryError{URL: seedURL, Status: statusErr.StatusCode, Err: err}
		}
		return nil, &DiscoveryError{URL: seedURL, Err: err}
	}

	links := &Links{HTML: out.AllLinks, PDF: out.PDFLinks}
	if links.HTML == nil {
		links.HTML = []string{}
	}
	if links.PDF == nil {
		links.PDF = []string{}
	}
	return links, nil
}

// ScrapePage asks the backend to scrape one html page
func (c *Client) ScrapePage(ctx context.Context, pageURL string) error {
	return c.postJSON(ctx, EndpointPage, map[string]any{
		"url":           pageURL,
		"scrape-images": false,
	}, nil)
}

// ScrapePDF asks the backend to scrape one linked pdf
func (c *Client) ScrapePDF(ctx context.Context, pdfURL string) error {
	return c.postJSON(ctx, EndpointPDF, map[string]any{
		"url":          pdfURL,
		"scrape-image": false,
	}, nil)
}

// ScrapePDFFile uploads raw pdf bytes as the multipart "file" part
func (c *Client) ScrapePDFFile(ctx context.Context, filename string, pdfBytes []byte) (*PDFFileResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(pdfBytes); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+EndpointPDFFile, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scraper request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(EndpointPDFFile, resp); err != nil {
		return nil, err
	}

	// the backend may answer with an empty or non-JSON body on success
	var out PDFFileResponse
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return &out, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("scraper request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(endpoint, resp); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

func checkStatus(endpoint string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(bodyBytes)),
	}
}

package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/beam-cloud/salesmap/pkg/types"
)

const (
	GmailAPIBase  = "https://gmail.googleapis.com/gmail/v1"
	GmailBatchURL = "https://gmail.googleapis.com/batch/gmail/v1"

	MaxPageSize      = 500
	DefaultChunkSize = 100
	defaultTimeout   = 60 * time.Second
)

// Fetch modes
const (
	FetchModeBatch    = "batch"    // one multipart batch request per chunk
	FetchModeParallel = "parallel" // one GET per message, fanned out within a chunk
)

// GmailClient talks to the Gmail REST API on behalf of a single access token
// per call. It is safe for concurrent use.
type GmailClient struct {
	HTTPClient *http.Client
	APIBase    string
	BatchURL   string
	PageSize   int
	ChunkSize  int
	FetchMode  string

	limiter *rate.Limiter
}

type GmailOption func(*GmailClient)

func WithHTTPClient(client *http.Client) GmailOption {
	return func(c *GmailClient) { c.HTTPClient = client }
}

func WithPageSize(size int) GmailOption {
	return func(c *GmailClient) { c.PageSize = size }
}

func WithChunkSize(size int) GmailOption {
	return func(c *GmailClient) { c.ChunkSize = size }
}

func WithFetchMode(mode string) GmailOption {
	return func(c *GmailClient) { c.FetchMode = mode }
}

// NewGmailClient creates a Gmail API client from config. Zero values fall
// back to the public Google endpoints and default sizes.
func NewGmailClient(cfg types.GmailConfig, opts ...GmailOption) *GmailClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &GmailClient{
		HTTPClient: &http.Client{Timeout: timeout},
		APIBase:    cfg.APIBase,
		BatchURL:   cfg.BatchURL,
		PageSize:   MaxPageSize,
		ChunkSize:  DefaultChunkSize,
		FetchMode:  FetchModeBatch,
	}
	if c.APIBase == "" {
		c.APIBase = GmailAPIBase
	}
	if c.BatchURL == "" {
		c.BatchURL = GmailBatchURL
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.PageSize <= 0 || c.PageSize > MaxPageSize {
		c.PageSize = MaxPageSize
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.FetchMode != FetchModeParallel {
		c.FetchMode = FetchModeBatch
	}
	return c
}

// do sends an authenticated request, waiting on the client-side limiter first
func (c *GmailClient) do(ctx context.Context, req *http.Request, token, endpoint string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		upstreamRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, err
	}
	upstreamRequests.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	log.Debug().Str("endpoint", endpoint).Int("status", resp.StatusCode).Msg("gmail API call")
	return resp, nil
}

// Request makes a GET request to the Gmail API and decodes the JSON response.
// Non-200 responses are returned as *types.UpstreamError.
func (c *GmailClient) Request(ctx context.Context, token, path, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.APIBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(ctx, req, token, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &types.UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// ListMessages fetches one page of message ids matching query
func (c *GmailClient) ListMessages(ctx context.Context, token, query, pageToken string, maxResults int) (*types.MessageList, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(maxResults))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var page types.MessageList
	if err := c.Request(ctx, token, "/users/me/messages?"+params.Encode(), "list", &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ListAllMessageIDs follows the continuation cursor until the provider stops
// returning one. A failed page ends pagination; the ids gathered so far are
// returned together with the error.
func (c *GmailClient) ListAllMessageIDs(ctx context.Context, token, query string) ([]string, error) {
	var (
		ids       []string
		pageToken string
		pages     int
	)

	for {
		page, err := c.ListMessages(ctx, token, query, pageToken, c.PageSize)
		if err != nil {
			log.Warn().Err(err).Int("pages", pages).Int("ids", len(ids)).Msg("message listing stopped early")
			return ids, fmt.Errorf("list page %d: %w", pages+1, err)
		}
		pages++

		for _, m := range page.Messages {
			ids = append(ids, m.ID)
		}

		if page.NextPageToken == "" {
			return ids, nil
		}
		pageToken = page.NextPageToken
	}
}

// GetMessage fetches a single message in full format
func (c *GmailClient) GetMessage(ctx context.Context, token, msgID string) (*types.RawMessage, error) {
	path := fmt.Sprintf("/users/me/messages/%s?format=full", url.PathEscape(msgID))
	var msg types.RawMessage
	if err := c.Request(ctx, token, path, "get", &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

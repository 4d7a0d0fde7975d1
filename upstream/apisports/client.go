// Package apisports implements sportsgate.Provider and sportsgate.TeamResolver
// against the API-Football v3 service, either direct or through RapidAPI.
package apisports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/smartsports/sportsgate/pkg/sportsgate"
)

const (
	DirectBaseURL   = "https://v3.football.api-sports.io"
	RapidAPIBaseURL = "https://api-football-v1.p.rapidapi.com/v3"
	rapidAPIHost    = "api-football-v1.p.rapidapi.com"

	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 3
	defaultRetryDelay  = time.Second
)

var (
	// ErrAPIKeyRequired is returned when the client is built without an API key
	ErrAPIKeyRequired = errors.New("api key is required")

	// ErrRateLimited is returned when the upstream answered 429
	ErrRateLimited = errors.New("upstream rate limit exceeded")

	// ErrRejected is returned when the upstream answered 200 with an errors object
	ErrRejected = errors.New("upstream rejected request")
)

// Config holds the upstream client configuration
type Config struct {
	// BaseURL overrides the endpoint (default: direct or RapidAPI URL)
	BaseURL string

	// APIKey is the API-Sports or RapidAPI key
	APIKey string

	// RapidAPI switches headers and default URL to the RapidAPI gateway
	RapidAPI bool

	// Timeout bounds a single HTTP attempt (default: 10 seconds)
	Timeout time.Duration

	// MaxAttempts bounds retries on transport errors and 5xx (default: 3)
	MaxAttempts int

	// RetryDelay is the linear backoff unit (default: 1 second)
	RetryDelay time.Duration

	// HTTPClient overrides the HTTP client (optional)
	HTTPClient *http.Client

	// Logger is used for structured logging (default: NoopLogger)
	Logger sportsgate.Logger
}

// Client calls the API-Football v3 REST API
type Client struct {
	baseURL     string
	headers     http.Header
	httpClient  *http.Client
	maxAttempts int
	retryDelay  time.Duration
	logger      sportsgate.Logger
}

// New creates an upstream client
func New(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	if config.BaseURL == "" {
		config.BaseURL = DirectBaseURL
		if config.RapidAPI {
			config.BaseURL = RapidAPIBaseURL
		}
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = defaultRetryDelay
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	if config.Logger == nil {
		config.Logger = &sportsgate.NoopLogger{}
	}

	headers := http.Header{}
	if config.RapidAPI {
		headers.Set("X-RapidAPI-Key", config.APIKey)
		headers.Set("X-RapidAPI-Host", rapidAPIHost)
	} else {
		headers.Set("x-apisports-key", config.APIKey)
	}
	headers.Set("Accept", "application/json")

	return &Client{
		baseURL:     config.BaseURL,
		headers:     headers,
		httpClient:  config.HTTPClient,
		maxAttempts: config.MaxAttempts,
		retryDelay:  config.RetryDelay,
		logger:      config.Logger,
	}, nil
}

// FetchStandings implements sportsgate.Provider
func (c *Client) FetchStandings(ctx context.Context, leagueID, season int) (json.RawMessage, error) {
	return c.get(ctx, "/standings", url.Values{
		"league": {strconv.Itoa(leagueID)},
		"season": {strconv.Itoa(season)},
	})
}

// FetchTeamStatistics implements sportsgate.Provider
func (c *Client) FetchTeamStatistics(ctx context.Context, teamID, leagueID, season int) (json.RawMessage, error) {
	return c.get(ctx, "/teams/statistics", url.Values{
		"team":   {strconv.Itoa(teamID)},
		"league": {strconv.Itoa(leagueID)},
		"season": {strconv.Itoa(season)},
	})
}

// FetchTeamLastMatches implements sportsgate.Provider
func (c *Client) FetchTeamLastMatches(ctx context.Context, teamID, limit int) (json.RawMessage, error) {
	return c.get(ctx, "/fixtures", url.Values{
		"team":   {strconv.Itoa(teamID)},
		"last":   {strconv.Itoa(limit)},
		"status": {"FT"},
	})
}

// FetchHeadToHead implements sportsgate.Provider. The fixture list is
// summarised from team1's point of view.
func (c *Client) FetchHeadToHead(ctx context.Context, team1ID, team2ID int) (json.RawMessage, error) {
	raw, err := c.get(ctx, "/fixtures/headtohead", url.Values{
		"h2h": {fmt.Sprintf("%d-%d", team1ID, team2ID)},
	})
	if err != nil {
		return nil, err
	}
	var fixtures []fixture
	if err := json.Unmarshal(raw, &fixtures); err != nil {
		return nil, fmt.Errorf("decode head-to-head: %w", err)
	}
	return json.Marshal(summarizeHeadToHead(fixtures, team1ID))
}

// envelope is the common response wrapper of every endpoint
type envelope struct {
	Errors   json.RawMessage `json:"errors"`
	Results  int             `json:"results"`
	Response json.RawMessage `json:"response"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, retry, err := c.do(ctx, endpoint)
		if err == nil {
			return decodeEnvelope(body, path)
		}
		lastErr = err
		if !retry || attempt == c.maxAttempts {
			break
		}

		c.logger.Warn("upstream request failed, retrying",
			sportsgate.Field{Key: "path", Value: path},
			sportsgate.Field{Key: "attempt", Value: attempt},
			sportsgate.Field{Key: "max_attempts", Value: c.maxAttempts},
			sportsgate.Field{Key: "error", Value: err},
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.retryDelay * time.Duration(attempt)):
		}
	}
	return nil, lastErr
}

// do performs one attempt. retry reports whether the failure is transient.
func (c *Client) do(ctx context.Context, endpoint string) (body []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header = c.headers.Clone()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read upstream response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, false, ErrRateLimited
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("upstream status %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("upstream status %d", resp.StatusCode)
	}
}

func decodeEnvelope(body []byte, path string) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if !isEmptyJSON(env.Errors) {
		return nil, fmt.Errorf("%w: %s", ErrRejected, string(env.Errors))
	}
	if isEmptyJSON(env.Response) {
		return nil, sportsgate.ErrEmptyPayload
	}
	return env.Response, nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "[]", "{}":
		return true
	}
	return false
}

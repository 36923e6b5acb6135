package judge0

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to a Judge0 compatible code execution service.
type Client interface {
	SubmitBatch(ctx context.Context, submissions []Submission) ([]string, error)
	GetBatchResults(ctx context.Context, tokens []string) ([]Result, error)
	ListLanguages(ctx context.Context) ([]Language, error)
}

// Config holds the judge endpoint and its static auth token.
type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

// New constructs an HTTP judge client.
func New(cfg Config, logger zerolog.Logger) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("judge base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		http:      &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "judge0_client").Logger(),
	}, nil
}

type client struct {
	baseURL   string
	authToken string
	http      *http.Client
	logger    zerolog.Logger
}

// SubmitBatch sends up to one batch of submissions and returns the judge
// tokens in request order. Source code is base64 encoded on the way out.
func (c *client) SubmitBatch(ctx context.Context, submissions []Submission) ([]string, error) {
	encoded := make([]Submission, len(submissions))
	for i, submission := range submissions {
		submission.SourceCode = base64.StdEncoding.EncodeToString([]byte(submission.SourceCode))
		encoded[i] = submission
	}

	body, err := json.Marshal(batchSubmitRequest{Submissions: encoded})
	if err != nil {
		return nil, fmt.Errorf("marshal batch request: %w", err)
	}

	endpoint := c.baseURL + "/submissions/batch?base64_encoded=true&wait=false"
	payload, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var responses []batchTokenResponse
	if err := json.Unmarshal(payload, &responses); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}

	tokens := make([]string, 0, len(responses))
	for _, response := range responses {
		if response.Token == "" {
			return nil, fmt.Errorf("judge returned an empty submission token")
		}
		tokens = append(tokens, response.Token)
	}

	if len(tokens) != len(submissions) {
		return nil, fmt.Errorf("judge returned %d tokens for %d submissions", len(tokens), len(submissions))
	}

	return tokens, nil
}

// GetBatchResults polls the judge for the given tokens. Results may still be
// queued or processing; callers filter on the status description.
func (c *client) GetBatchResults(ctx context.Context, tokens []string) ([]Result, error) {
	endpoint := fmt.Sprintf("%s/submissions/batch?tokens=%s&base64_encoded=true",
		c.baseURL, url.QueryEscape(strings.Join(tokens, ",")))

	payload, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var response batchResultResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, fmt.Errorf("decode batch results: %w", err)
	}

	return response.Submissions, nil
}

// ListLanguages fetches the judge's language catalog.
func (c *client) ListLanguages(ctx context.Context) ([]Language, error) {
	payload, err := c.do(ctx, http.MethodGet, c.baseURL+"/languages", nil)
	if err != nil {
		return nil, err
	}

	var languages []Language
	if err := json.Unmarshal(payload, &languages); err != nil {
		return nil, fmt.Errorf("decode languages: %w", err)
	}

	return languages, nil
}

func (c *client) do(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build judge request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		request.Header.Set("X-Auth-Token", c.authToken)
	}

	response, err := c.http.Do(request)
	if err != nil {
		return nil, fmt.Errorf("judge request failed: %w", err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("read judge response: %w", err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		c.logger.Warn().Int("status", response.StatusCode).Str("endpoint", endpoint).Msg("judge returned non-2xx response")
		return nil, fmt.Errorf("judge responded with status %d: %s", response.StatusCode, strings.TrimSpace(string(payload)))
	}

	return payload, nil
}

// DecodeOutput converts a base64 judge stream back to text. Invalid payloads
// are returned untouched since the judge occasionally emits plain text.
func DecodeOutput(encoded string) string {
	if encoded == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return encoded
	}
	return string(decoded)
}

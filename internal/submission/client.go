package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/bluefermion/annotator/internal/model"
)

var (
	// ErrNoEndpoint is returned when no submit endpoint is configured.
	ErrNoEndpoint = errors.New("no submit endpoint configured")
	// ErrInvalidResponse is returned for a 2xx response whose body is not JSON.
	ErrInvalidResponse = errors.New("endpoint returned a non-JSON body")
	// ErrUnexpectedStatus is matched by every *StatusError.
	ErrUnexpectedStatus = errors.New("endpoint returned an unexpected status")
)

// StatusError is a non-2xx response from the endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// IsRetryable reports whether a failed attempt may succeed if repeated:
// transport errors, 429 and 5xx. Cancellation and 4xx are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNoEndpoint) || errors.Is(err, ErrInvalidResponse) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	var me *json.MarshalerError
	if errors.As(err, &me) {
		return false
	}
	return true
}

// Options configures a Client.
type Options struct {
	Timeout       time.Duration
	Retry         RetryConfig
	RatePerSecond float64 // 0 disables the limiter
	HTTPClient    *http.Client
}

// Result describes a finished submission.
type Result struct {
	Attempts   int
	StatusCode int
	Body       json.RawMessage
}

// Client posts payloads to the change-processing endpoint.
type Client struct {
	http    *http.Client
	retry   RetryConfig
	limiter *rate.Limiter
}

// NewClient builds a client from opts.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	c := &Client{http: hc, retry: opts.Retry}
	if opts.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}
	return c
}

// Submit sends payload to endpoint, retrying transient failures. One POST is
// issued per attempt; the payload is serialized once.
func (c *Client) Submit(ctx context.Context, endpoint, token string, payload *model.SubmissionPayload) (Result, error) {
	if endpoint == "" {
		return Result{}, ErrNoEndpoint
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("failed to serialize payload: %w", err)
	}

	var res Result
	rr := RetryWithBackoff(ctx, c.retry, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		status, respBody, err := c.post(ctx, endpoint, token, body)
		res.StatusCode = status
		res.Body = respBody
		return err
	})
	res.Attempts = rr.Attempts
	if !rr.Success {
		return res, rr.LastError
	}

	log.Info().
		Str("submission_id", payload.SubmissionID).
		Int("changes", len(payload.Changes)).
		Int("status", res.StatusCode).
		Int("attempts", res.Attempts).
		Msg("Submission delivered")
	return res, nil
}

func (c *Client) post(ctx context.Context, endpoint, token string, body []byte) (int, json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if !json.Valid(respBody) {
		return resp.StatusCode, nil, ErrInvalidResponse
	}
	return resp.StatusCode, json.RawMessage(respBody), nil
}

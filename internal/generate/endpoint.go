// Package generate contains the content- and image-generation adapters.
// Generation endpoints are opaque request/response services; this package
// owns the retry/backoff/fallback policy around them and maps every upstream
// failure into the internal error taxonomy at the boundary.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"decksmith/internal/taskerr"

	"github.com/cenkalti/backoff/v4"
)

// TextEndpoint produces text for a prompt.
type TextEndpoint interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ImageEndpoint produces image bytes for a prompt.
type ImageEndpoint interface {
	Generate(ctx context.Context, prompt, style string) ([]byte, error)
}

// HTTPEndpoint talks to a generation service over HTTP. One instance serves
// as both a TextEndpoint and an ImageEndpoint depending on the URL it is
// pointed at.
type HTTPEndpoint struct {
	URL    string
	APIKey string
	Client *http.Client
}

// NewHTTPEndpoint creates an endpoint adapter with a bounded per-call timeout.
func NewHTTPEndpoint(url, apiKey string, timeout time.Duration) *HTTPEndpoint {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPEndpoint{
		URL:    url,
		APIKey: apiKey,
		Client: &http.Client{Timeout: timeout},
	}
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Complete sends a text prompt and returns the raw completion.
func (e *HTTPEndpoint) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := e.post(ctx, completionRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}

	var resp completionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", taskerr.Wrap(taskerr.KindPermanentUpstream, "unparseable completion response", err)
	}
	return resp.Text, nil
}

type imageRequest struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style"`
}

type imageResponse struct {
	ImageBase64 []byte `json:"image_base64"`
}

// Generate sends an image prompt and returns the raw image bytes.
func (e *HTTPEndpoint) Generate(ctx context.Context, prompt, style string) ([]byte, error) {
	body, err := e.post(ctx, imageRequest{Prompt: prompt, Style: style})
	if err != nil {
		return nil, err
	}

	var resp imageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, taskerr.Wrap(taskerr.KindPermanentUpstream, "unparseable image response", err)
	}
	if len(resp.ImageBase64) == 0 {
		return nil, taskerr.New(taskerr.KindPermanentUpstream, "empty image response")
	}
	return resp.ImageBase64, nil
}

// post performs the request and maps transport/status failures into the
// taxonomy. Vendor error bodies never leave this function.
func (e *HTTPEndpoint) post(ctx context.Context, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal endpoint request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create endpoint request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		// Transport timeouts are retryable; the per-call timeout bounds them.
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, taskerr.Wrap(taskerr.KindRetryableUpstream, "generation endpoint timed out", err)
		}
		return nil, taskerr.Wrap(taskerr.KindRetryableUpstream, "generation endpoint unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, taskerr.Wrap(taskerr.KindRetryableUpstream, "failed to read endpoint response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, taskerr.New(taskerr.KindRetryableUpstream,
			fmt.Sprintf("generation endpoint throttled (status %d)", resp.StatusCode))
	default:
		return nil, taskerr.New(taskerr.KindPermanentUpstream,
			fmt.Sprintf("generation endpoint rejected request (status %d)", resp.StatusCode))
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// callWithRetry runs fn under the adapter retry policy: throttling-class
// errors back off exponentially up to maxAttempts; permanent and unknown
// errors get exactly one retry before escalating, to avoid infinite backoff
// loops.
func callWithRetry(ctx context.Context, maxAttempts int, fn func(context.Context) error) error {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.RandomizationFactor = 0.2

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		if taskerr.IsRetryable(err) {
			if attempt >= maxAttempts {
				return err
			}
		} else if attempt >= 2 {
			return err
		}

		select {
		case <-ctx.Done():
			return taskerr.Wrap(taskerr.KindRetryableUpstream, "generation cancelled", ctx.Err())
		case <-time.After(bo.NextBackOff()):
		}
	}
}

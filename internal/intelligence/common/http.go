package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ResumeLens/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

// HTTPRecognizer posts text to an external model server:
//
//	POST <endpoint>  {"text": "..."}
//	200              {"spans": [{"start": 0, "end": 6, "label": "Skill"}]}
//
// Spans with labels outside the target set are dropped.
type HTTPRecognizer struct {
	endpoint     string
	version      string
	httpClient   *http.Client
	logger       logging.Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// HTTPOption configures an HTTPRecognizer.
type HTTPOption func(*HTTPRecognizer)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPRecognizer) {
		if c != nil {
			r.httpClient = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(r *HTTPRecognizer) {
		if d > 0 {
			r.httpClient.Timeout = d
		}
	}
}

// WithRetry sets the retry budget and backoff bounds.
func WithRetry(max int, waitMin, waitMax time.Duration) HTTPOption {
	return func(r *HTTPRecognizer) {
		if max >= 0 {
			r.retryMax = max
		}
		if waitMin > 0 {
			r.retryWaitMin = waitMin
		}
		if waitMax >= r.retryWaitMin {
			r.retryWaitMax = waitMax
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) HTTPOption {
	return func(r *HTTPRecognizer) { r.logger = logging.OrNop(l) }
}

// NewHTTPRecognizer validates endpoint and applies opts. version is the
// model version reported before the server has answered.
func NewHTTPRecognizer(endpoint, version string, opts ...HTTPOption) (*HTTPRecognizer, error) {
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Configuration("recognizer: model endpoint must be an http(s) URL").
			WithDetailf("endpoint=%q", endpoint)
	}
	if version == "" {
		version = "http:" + u.Host
	}
	r := &HTTPRecognizer{
		endpoint:     endpoint,
		version:      version,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		logger:       logging.NewNopLogger(),
		retryMax:     2,
		retryWaitMin: 200 * time.Millisecond,
		retryWaitMax: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type recognizeRequest struct {
	Text string `json:"text"`
}

type recognizeResponse struct {
	Spans []struct {
		Start int    `json:"start"`
		End   int    `json:"end"`
		Label string `json:"label"`
	} `json:"spans"`
}

func (r *HTTPRecognizer) Version() string { return r.version }

func (r *HTTPRecognizer) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}

func (r *HTTPRecognizer) Recognize(ctx context.Context, text string) (resume.SpanSet, error) {
	body, err := json.Marshal(recognizeRequest{Text: text})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "recognizer: encode request")
	}

	var lastErr error
	for attempt := 0; attempt <= r.retryMax; attempt++ {
		if attempt > 0 {
			wait := r.backoff(attempt)
			r.logger.Debug("retrying model request", logging.Int("attempt", attempt), logging.Duration("wait", wait))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		spans, retry, err := r.do(ctx, body)
		if err == nil {
			return spans, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (r *HTTPRecognizer) do(ctx context.Context, body []byte) (resume.SpanSet, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeInternal, "recognizer: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, true, errors.Wrap(err, errors.ErrCodeExternalService, "recognizer: request failed")
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errors.Wrap(err, errors.ErrCodeExternalService, "recognizer: read response")
	}
	r.logger.Debug("model response", logging.Int("status", resp.StatusCode), logging.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retry, errors.New(errors.ErrCodeExternalService, "recognizer: unexpected status").
			WithDetail(fmt.Sprintf("status=%d body=%q", resp.StatusCode, truncate(payload, 200)))
	}

	var decoded recognizeResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeSerialization, "recognizer: decode response")
	}
	out := make(resume.SpanSet, 0, len(decoded.Spans))
	for _, s := range decoded.Spans {
		label, ok := resume.ParseLabel(s.Label)
		if !ok {
			continue
		}
		out = append(out, resume.Span{Start: s.Start, End: s.End, Label: label, Source: resume.SourcePrediction})
	}
	return out, false, nil
}

func (r *HTTPRecognizer) backoff(attempt int) time.Duration {
	d := r.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if d > r.retryWaitMax {
		d = r.retryWaitMax
	}
	if q := int64(d / 4); q > 0 {
		d += time.Duration(rand.Int63n(q))
	}
	return d
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n])
}

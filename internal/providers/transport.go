package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

// Retry policy for transient upstream failures.
const (
	retryMaxAttempts  = 3
	retryBaseInterval = 2 * time.Second
	retryMaxInterval  = 10 * time.Second
)

// transport is the HTTP plumbing shared by every provider adapter. It
// owns retries and error classification so adapters only deal with
// request and response shapes.
type transport struct {
	httpClient *http.Client
	baseURL    string
	setAuth    func(*http.Request)
}

func newTransport(baseURL string, setAuth func(*http.Request)) *transport {
	return &transport{
		httpClient: &http.Client{Timeout: defaultStreamTimeout},
		baseURL:    baseURL,
		setAuth:    setAuth,
	}
}

// newRetryPolicy builds the bounded exponential backoff applied around
// every upstream call. Timeouts are excluded, a deadline that already
// expired will not survive a second attempt.
func newRetryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryBaseInterval
	policy.MaxInterval = retryMaxInterval
	return backoff.WithContext(backoff.WithMaxRetries(policy, retryMaxAttempts-1), ctx)
}

// postJSON sends body to endpoint and decodes the JSON response into
// out. Rate limits, connection failures, and 5xx responses are retried
// with bounded exponential backoff before being reported.
func (t *transport) postJSON(ctx context.Context, endpoint string, body any, out any) *ClientError {
	payload, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return &ClientError{Type: ErrorAPI, Message: fmt.Sprintf("encode request: %v", errMarshal)}
	}

	var result []byte
	operation := func() error {
		req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+endpoint, bytes.NewReader(payload))
		if errReq != nil {
			return backoff.Permanent(errReq)
		}
		req.Header.Set("Content-Type", "application/json")
		t.setAuth(req)

		resp, errDo := t.httpClient.Do(req)
		if errDo != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(errDo)
			}
			return errDo
		}
		defer func() { _ = resp.Body.Close() }()

		data, errRead := io.ReadAll(resp.Body)
		if errRead != nil {
			return errRead
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			result = data
			return nil
		}
		upstreamErr := apiError(resp.StatusCode, upstreamMessage(data, resp.StatusCode))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return upstreamErr
		}
		return backoff.Permanent(upstreamErr)
	}

	if errRetry := backoff.Retry(operation, newRetryPolicy(ctx)); errRetry != nil {
		return classifyTransportError(ctx, errRetry)
	}
	if errDecode := json.Unmarshal(result, out); errDecode != nil {
		return &ClientError{Type: ErrorAPI, Message: fmt.Sprintf("decode response: %v", errDecode)}
	}
	return nil
}

// postStream sends body to endpoint and returns the raw response body
// for SSE consumption. The caller owns closing it. Only the initial
// connection is retried, an established stream is never replayed.
func (t *transport) postStream(ctx context.Context, endpoint string, body any) (io.ReadCloser, *ClientError) {
	payload, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		return nil, &ClientError{Type: ErrorAPI, Message: fmt.Sprintf("encode request: %v", errMarshal)}
	}

	var stream io.ReadCloser
	operation := func() error {
		req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+endpoint, bytes.NewReader(payload))
		if errReq != nil {
			return backoff.Permanent(errReq)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/event-stream")
		t.setAuth(req)

		resp, errDo := t.httpClient.Do(req)
		if errDo != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(errDo)
			}
			return errDo
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			stream = resp.Body
			return nil
		}
		data, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		upstreamErr := apiError(resp.StatusCode, upstreamMessage(data, resp.StatusCode))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return upstreamErr
		}
		return backoff.Permanent(upstreamErr)
	}

	if errRetry := backoff.Retry(operation, newRetryPolicy(ctx)); errRetry != nil {
		return nil, classifyTransportError(ctx, errRetry)
	}
	return stream, nil
}

// classifyTransportError maps a terminal retry failure to a ClientError.
func classifyTransportError(ctx context.Context, err error) *ClientError {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrorTimeout, Message: err.Error()}
	}
	log.WithError(err).Warn("providers: upstream call failed after retries")
	return &ClientError{Type: ErrorAPI, Message: err.Error()}
}

// upstreamMessage extracts a readable error message from a provider
// error body, falling back to the status code.
func upstreamMessage(data []byte, status int) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	return fmt.Sprintf("upstream returned status %d", status)
}

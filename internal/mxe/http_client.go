package mxe

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"evalys-gmpc/internal/domain"
	"evalys-gmpc/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// JSON-RPC error codes the gateway uses for non-retryable conditions.
const (
	codeSubmissionRejected = -32001
	codeResultNotAvailable = -32002
)

// HTTPClient implements ComputeClient against the cluster gateway using
// HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64

	// Authority key is stable per cluster; fetched once and cached.
	authorityMu sync.Mutex
	authority   ed25519.PublicKey
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a gateway client for the given endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
// Transport and 5xx-class failures are retried; gateway-level RPC errors
// are returned immediately since retrying reproduces the same answer.
func (c *HTTPClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordGatewayLatency(method, time.Since(start).Seconds())
	}()

	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			switch rpcResp.Error.Code {
			case codeSubmissionRejected:
				return fmt.Errorf("%w: %s", ErrSubmissionRejected, rpcResp.Error.Message)
			case codeResultNotAvailable:
				return fmt.Errorf("%w: %s", ErrResultNotAvailable, rpcResp.Error.Message)
			}
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Submit queues a computation over the sealed input.
func (c *HTTPClient) Submit(ctx context.Context, circuit domain.CircuitID, encryptedInput []byte) (string, error) {
	params := submitParams{
		Circuit:    string(circuit),
		Ciphertext: encodeCiphertext(encryptedInput),
	}
	var result submitResult
	if err := c.call(ctx, "evalys_submitComputation", params, &result); err != nil {
		return "", err
	}
	if result.ComputationID == "" {
		return "", fmt.Errorf("gateway returned empty computation id")
	}
	return result.ComputationID, nil
}

// PollStatus reports the current computation status.
func (c *HTTPClient) PollStatus(ctx context.Context, computationID string) (domain.ComputationStatus, error) {
	var result statusResult
	if err := c.call(ctx, "evalys_getComputationStatus", []string{computationID}, &result); err != nil {
		return "", err
	}
	status := domain.ComputationStatus(result.Status)
	switch status {
	case domain.StatusPending, domain.StatusCompleted, domain.StatusFailed:
		return status, nil
	default:
		return "", fmt.Errorf("gateway returned unknown status %q", result.Status)
	}
}

// FetchResult returns the sealed output and receipt for a completed
// computation.
func (c *HTTPClient) FetchResult(ctx context.Context, computationID string) (*ComputationResult, error) {
	var result fetchResult
	if err := c.call(ctx, "evalys_getComputationResult", []string{computationID}, &result); err != nil {
		return nil, err
	}

	ciphertext, err := decodeCiphertext(result.Ciphertext)
	if err != nil {
		return nil, err
	}
	receipt, err := result.Receipt.toDomain()
	if err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &ComputationResult{
		EncryptedOutput: ciphertext,
		Receipt:         receipt,
	}, nil
}

// AuthorityKey returns the cluster's receipt-signing public key, fetching it
// from the gateway on first use.
func (c *HTTPClient) AuthorityKey(ctx context.Context) (ed25519.PublicKey, error) {
	c.authorityMu.Lock()
	defer c.authorityMu.Unlock()

	if c.authority != nil {
		return c.authority, nil
	}

	var result authorityKeyResult
	if err := c.call(ctx, "evalys_getAuthorityKey", nil, &result); err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(result.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode authority key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("authority key is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	c.authority = ed25519.PublicKey(raw)
	return c.authority, nil
}

var _ ComputeClient = (*HTTPClient)(nil)

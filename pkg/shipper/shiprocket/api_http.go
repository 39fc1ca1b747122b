package shiprocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spinhouse/delivery/pkg/shipper"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
type HTTPAPIClient struct {
	baseURL    string
	email      string
	password   string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL  string
	Email    string
	Password string
	Timeout  time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
// Authentication is deferred until the first request.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &HTTPAPIClient{
		baseURL:  baseURL,
		email:    cfg.Email,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateAdhocOrder creates an order and shipment via POST /orders/create/adhoc.
// Exactly one request is made per call.
func (c *HTTPAPIClient) CreateAdhocOrder(ctx context.Context, req *AdhocOrderRequest) (*AdhocOrderResponse, error) {
	resp, err := c.doAuthorized(ctx, http.MethodPost, "/orders/create/adhoc", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		apiErr := c.parseError(resp)
		if resp.StatusCode >= http.StatusInternalServerError {
			// The order may have been created before the gateway failed.
			apiErr.WithRetryable(false)
		}
		return nil, apiErr
	}

	var result AdhocOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, shipper.NewShipperError(gatewayName, shipper.CodeMalformedResponse, "failed to decode order response").
			WithCause(fmt.Errorf("%w: %v", shipper.ErrMalformedResponse, err))
	}
	if result.ShipmentID == "" {
		return nil, shipper.NewShipperError(gatewayName, shipper.CodeMalformedResponse, "order response has no shipment_id").
			WithCause(shipper.ErrMalformedResponse)
	}

	return &result, nil
}

// GeneratePickup schedules a pickup via POST /courier/generate/pickup.
func (c *HTTPAPIClient) GeneratePickup(ctx context.Context, req *PickupRequest) (*PickupResponse, error) {
	resp, err := c.doAuthorized(ctx, http.MethodPost, "/courier/generate/pickup", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result PickupResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, shipper.NewShipperError(gatewayName, shipper.CodeMalformedResponse, "failed to decode pickup response").
			WithCause(fmt.Errorf("%w: %v", shipper.ErrMalformedResponse, err))
	}

	return &result, nil
}

// authToken returns the memoized bearer token, logging in on first use.
func (c *HTTPAPIClient) authToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" {
		return c.token, nil
	}

	if c.email == "" || c.password == "" {
		return "", shipper.NewShipperError(gatewayName, shipper.CodeMissingCredentials, "email and password are required").
			WithCause(shipper.ErrAuthenticationFailed)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/login", "", &LoginRequest{
		Email:    c.email,
		Password: c.password,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := c.parseError(resp)
		return "", shipper.NewShipperError(gatewayName, shipper.CodeAuthFailed, "login rejected").
			WithStatusCode(resp.StatusCode).
			WithCause(errors.Join(shipper.ErrAuthenticationFailed, apiErr))
	}

	var login LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil || login.Token == "" {
		return "", shipper.NewShipperError(gatewayName, shipper.CodeAuthFailed, "login response has no token").
			WithCause(shipper.ErrAuthenticationFailed)
	}

	c.token = login.Token
	return c.token, nil
}

func (c *HTTPAPIClient) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// doAuthorized performs a request with the bearer token. A 401 clears the
// memoized token so the next call logs in again.
func (c *HTTPAPIClient) doAuthorized(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	token, err := c.authToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, method, path, token, body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		defer resp.Body.Close()
		c.resetToken()
		return nil, shipper.NewShipperError(gatewayName, shipper.CodeAuthFailed, "token rejected").
			WithStatusCode(resp.StatusCode).
			WithCause(shipper.ErrAuthenticationFailed)
	}

	return resp, nil
}

// doRequest performs an HTTP request with proper headers.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path, token string, body interface{}) (*http.Response, error) {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "spinhouse-delivery/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, shipper.NewShipperError(gatewayName, shipper.CodeTransport, "request failed").
			WithCause(err).
			WithRetryable(ctx.Err() == nil && neverSent(err))
	}
	return resp, nil
}

// neverSent reports whether err happened while connecting, before any byte
// of the request reached the gateway. Timeouts after the request was
// written are ambiguous and must not be repeated.
func neverSent(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) *shipper.ShipperError {
	body, _ := io.ReadAll(resp.Body)

	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = string(body)
	}
	apiErr.Code = fmt.Sprintf("HTTP_%d", resp.StatusCode)

	var sentinel error
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		sentinel = shipper.ErrRateLimitExceeded
	case resp.StatusCode >= http.StatusInternalServerError:
		sentinel = shipper.ErrServiceUnavailable
	}

	cause := error(apiErr)
	if sentinel != nil {
		cause = errors.Join(sentinel, apiErr)
	}

	return shipper.NewShipperError(gatewayName, shipper.CodeRejected, apiErr.Message).
		WithStatusCode(resp.StatusCode).
		WithCause(cause)
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)

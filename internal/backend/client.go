package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/layout"
	pkgjwt "github.com/huijing/sgtechonline/pkg/jwt"
	pkglog "github.com/huijing/sgtechonline/pkg/log"
)

// Operation names used in BackendRequestError.
const (
	OpStart  = "start"
	OpLayout = "layout"
	OpStop   = "stop"
)

const (
	authHeader      = "X-OPENTOK-AUTH"
	maxErrorBodyLen = 4096
)

// Client drives the remote broadcast service.
type Client interface {
	StartBroadcast(ctx context.Context, req *StartRequest) (*StartResponse, error)
	UpdateLayout(ctx context.Context, broadcastID string, cfg layout.Config) error
	StopBroadcast(ctx context.Context, broadcastID string) (*StopResponse, error)
}

// HTTPClient implements Client against the project broadcast REST API.
type HTTPClient struct {
	baseURL    string
	signer     *pkgjwt.ProjectSigner
	httpClient *http.Client
}

// NewHTTPClient creates a client. timeout bounds each request in addition
// to any deadline on the caller's context.
func NewHTTPClient(baseURL string, signer *pkgjwt.ProjectSigner, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *HTTPClient) broadcastURL(parts ...string) string {
	u := fmt.Sprintf("%s/v2/project/%s/broadcast", c.baseURL, url.PathEscape(c.signer.APIKey()))
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// StartBroadcast asks the backend to compose and publish the session.
func (c *HTTPClient) StartBroadcast(ctx context.Context, req *StartRequest) (*StartResponse, error) {
	var resp StartResponse
	if err := c.do(ctx, OpStart, http.MethodPost, c.broadcastURL(), req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, &domain.BackendRequestError{Op: OpStart, Err: errors.New("response has no broadcast id")}
	}
	return &resp, nil
}

// UpdateLayout replaces the layout of a running broadcast.
func (c *HTTPClient) UpdateLayout(ctx context.Context, broadcastID string, cfg layout.Config) error {
	return c.do(ctx, OpLayout, http.MethodPut, c.broadcastURL(broadcastID, "layout"), ToWire(cfg), nil)
}

// StopBroadcast stops a running broadcast.
func (c *HTTPClient) StopBroadcast(ctx context.Context, broadcastID string) (*StopResponse, error) {
	var resp StopResponse
	if err := c.do(ctx, OpStop, http.MethodPost, c.broadcastURL(broadcastID, "stop"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, target string, body, out interface{}) error {
	l := pkglog.Ctx(ctx)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &domain.BackendRequestError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &domain.BackendRequestError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	token, err := c.signer.Sign()
	if err != nil {
		return &domain.BackendRequestError{Op: op, Err: fmt.Errorf("failed to sign request: %w", err)}
	}
	req.Header.Set(authHeader, token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		l.Warn().Err(err).Str("op", op).Msg("broadcast backend request failed")
		return &domain.BackendRequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	l.Debug().
		Str("op", op).
		Int(pkglog.FieldStatus, resp.StatusCode).
		Float64(pkglog.FieldLatency, float64(time.Since(start).Milliseconds())).
		Msg("broadcast backend responded")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return &domain.BackendRequestError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("backend returned %s: %s", resp.Status, strings.TrimSpace(string(msg))),
		}
	}

	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.BackendRequestError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &domain.BackendRequestError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

package retell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voice-relay/internal/config"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "

	// maxResponseBytes bounds how much of a provider response is read.
	maxResponseBytes = 8 << 20
	// maxErrorBody bounds the response body echoed in a rejected Error.
	maxErrorBody = 2048

	todayDateLayout = "January 2, 2006"
)

// Client talks to the Retell REST API. Every request is bounded by the
// configured timeout and is never retried; callers that want resilience
// branch on KindOf(err).
type Client struct {
	baseURL    string
	apiKey     string
	fromNumber string
	agentID    string
	verifyKey  []byte

	http *http.Client
	log  *slog.Logger
	now  func() time.Time
}

func NewClient(cfg config.RetellConfig, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("retell: api key is required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("retell: base url is required")
	}
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		fromNumber: cfg.FromNumber,
		agentID:    cfg.AgentID,
		verifyKey:  []byte(cfg.WebhookVerifyKey),
		http:       &http.Client{Timeout: timeout},
		log:        log,
		now:        time.Now,
	}, nil
}

type createPhoneCallRequest struct {
	FromNumber       string            `json:"from_number"`
	ToNumber         string            `json:"to_number"`
	OverrideAgentID  string            `json:"override_agent_id,omitempty"`
	DynamicVariables map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

type listCallsRequest struct {
	FilterCriteria map[string]any `json:"filter_criteria"`
	SortOrder      string         `json:"sort_order"`
	Limit          int            `json:"limit"`
}

// CreatePhoneCall places an outbound call from the configured number using
// the configured agent. Only 200 and 201 count as success.
func (c *Client) CreatePhoneCall(ctx context.Context, toNumber string) (Call, error) {
	const op = "create phone call"
	body := createPhoneCallRequest{
		FromNumber:      c.fromNumber,
		ToNumber:        toNumber,
		OverrideAgentID: c.agentID,
		DynamicVariables: map[string]string{
			"today_date": c.now().Format(todayDateLayout),
		},
	}
	c.log.Info("creating phone call", "to", toNumber, "from", c.fromNumber, "agent_id", c.agentID)

	raw, err := c.do(ctx, op, http.MethodPost, "/v2/create-phone-call", body, http.StatusOK, http.StatusCreated)
	if err != nil {
		return Call{}, err
	}
	var call Call
	if err := decode(op, raw, &call); err != nil {
		return Call{}, err
	}
	c.log.Info("phone call created", "call_id", call.CallID)
	return call, nil
}

// GetCall fetches the provider's current view of one call.
func (c *Client) GetCall(ctx context.Context, callID string) (Call, error) {
	const op = "get call"
	raw, err := c.do(ctx, op, http.MethodGet, "/v2/get-call/"+url.PathEscape(callID), nil)
	if err != nil {
		return Call{}, err
	}
	var call Call
	if err := decode(op, raw, &call); err != nil {
		return Call{}, err
	}
	return call, nil
}

// ListCalls returns up to limit calls, most recent first.
func (c *Client) ListCalls(ctx context.Context, limit int) ([]Call, error) {
	const op = "list calls"
	body := listCallsRequest{
		FilterCriteria: map[string]any{},
		SortOrder:      "descending",
		Limit:          limit,
	}
	raw, err := c.do(ctx, op, http.MethodPost, "/v2/list-calls", body, http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, err
	}
	var out []Call
	if err := decode(op, raw, &out); err != nil {
		return nil, err
	}
	c.log.Debug("listed calls", "count", len(out))
	return out, nil
}

// do sends one request. With no okStatus given, any 2xx is accepted.
func (c *Client) do(ctx context.Context, op, method, path string, body any, okStatus ...int) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("retell: %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("retell: %s: build request: %w", op, err)
	}
	req.Header.Set(authorizationHeader, bearerPrefix+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.transportError(op, err)
	}

	if !statusOK(resp.StatusCode, okStatus) {
		c.log.Error("retell request rejected", "op", op, "status", resp.StatusCode)
		return nil, &Error{
			Kind:       KindRejected,
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw), maxErrorBody),
		}
	}
	return raw, nil
}

func (c *Client) transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("retell: %s: %w", op, err)
	}
	kind := KindConnection
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	c.log.Error("retell request failed", "op", op, "kind", string(kind), "err", err)
	return &Error{Kind: kind, Op: op, Err: err}
}

func decode(op string, raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &Error{Kind: KindMalformedResponse, Op: op, Err: err}
	}
	return nil
}

func statusOK(code int, ok []int) bool {
	if len(ok) == 0 {
		return code >= 200 && code < 300
	}
	for _, s := range ok {
		if code == s {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package profilegateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Lumos-Programming/profile-api/internal/adapters/wire"
	"github.com/Lumos-Programming/profile-api/internal/domain"
	"github.com/Lumos-Programming/profile-api/internal/ports/out/profilegateway"
)

// maxBodyBytes bounds what is read from the remote side.
const maxBodyBytes = 1 << 20

type Options struct {
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
	// BearerToken is sent as "Authorization: Bearer <token>" when set.
	BearerToken string
	// DebugSubject is sent as X-Debug-Subject when set (dev auth mode).
	DebugSubject string
	// NewKey generates idempotency keys; defaults to uuid.NewString.
	NewKey func() string
}

// Client implements profilegateway.Gateway over the basic-info HTTP contract.
type Client struct {
	endpoint string
	reg      *domain.Registry
	opts     Options
}

func New(endpoint string, reg *domain.Registry, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.NewKey == nil {
		opts.NewKey = uuid.NewString
	}
	if reg == nil {
		reg = domain.DefaultRegistry()
	}
	return &Client{endpoint: endpoint, reg: reg, opts: opts}
}

var _ profilegateway.Gateway = (*Client)(nil)

func (c *Client) Load(ctx context.Context) (*domain.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, &profilegateway.NetworkError{Op: "load", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, &profilegateway.NetworkError{Op: "load", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &profilegateway.NetworkError{Op: "load", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &profilegateway.NetworkError{Op: "load", StatusCode: resp.StatusCode}
	}
	return wire.Decode(c.reg, body)
}

// Save replaces the remote record with p. Each call carries a fresh Idempotency-Key;
// the client never re-sends on its own.
func (c *Client) Save(ctx context.Context, p *domain.Profile) (profilegateway.Ack, error) {
	payload, err := wire.Encode(p)
	if err != nil {
		return profilegateway.Ack{}, err
	}
	key := c.opts.NewKey()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return profilegateway.Ack{}, &profilegateway.NetworkError{Op: "save", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	c.authorize(req)

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return profilegateway.Ack{}, &profilegateway.NetworkError{Op: "save", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return profilegateway.Ack{IdempotencyKey: key, StatusCode: resp.StatusCode}, nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return profilegateway.Ack{}, validationErrorFromResponse(resp)
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return profilegateway.Ack{}, &profilegateway.NetworkError{Op: "save", StatusCode: resp.StatusCode}
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.opts.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.BearerToken)
	}
	if c.opts.DebugSubject != "" {
		req.Header.Set("X-Debug-Subject", c.opts.DebugSubject)
	}
}

// validationErrorFromResponse reads the API error envelope; a body that is not
// an envelope is surfaced as the message.
func validationErrorFromResponse(resp *http.Response) error {
	ve := &profilegateway.ValidationError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		ve.Message = http.StatusText(resp.StatusCode)
		return ve
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		ve.Code = envelope.Error.Code
		ve.Message = envelope.Error.Message
		ve.Details = envelope.Error.Details
		return ve
	}
	ve.Message = string(bytes.TrimSpace(body))
	if ve.Message == "" {
		ve.Message = http.StatusText(resp.StatusCode)
	}
	return ve
}

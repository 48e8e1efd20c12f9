// Package lineoauth exchanges LINE login authorization codes for the LINE user id.
package lineoauth

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

	"github.com/Lumos-Programming/profile-api/internal/ports/out/accountlink"
)

const (
	DefaultTokenURL   = "https://api.line.me/oauth2/v2.1/token"
	DefaultProfileURL = "https://api.line.me/v2/profile"

	maxBodyBytes = 1 << 20
)

type Options struct {
	ChannelID     string
	ChannelSecret string
	RedirectURI   string

	// TokenURL and ProfileURL default to the LINE platform endpoints.
	TokenURL   string
	ProfileURL string
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

type Client struct {
	opts Options
}

func New(opts Options) *Client {
	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}
	if opts.ProfileURL == "" {
		opts.ProfileURL = DefaultProfileURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{opts: opts}
}

var _ accountlink.Provider = (*Client)(nil)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type profileResponse struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Exchange redeems code at the token endpoint and reads the user id from the
// profile endpoint with the resulting access token.
func (c *Client) Exchange(ctx context.Context, code string) (accountlink.Identity, error) {
	if c.opts.ChannelID == "" || c.opts.ChannelSecret == "" || c.opts.RedirectURI == "" {
		return accountlink.Identity{}, accountlink.ErrNotConfigured
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.opts.RedirectURI)
	form.Set("client_id", c.opts.ChannelID)
	form.Set("client_secret", c.opts.ChannelSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return accountlink.Identity{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var token tokenResponse
	if err := c.do(req, "token", &token); err != nil {
		return accountlink.Identity{}, err
	}
	if token.AccessToken == "" {
		return accountlink.Identity{}, errors.New("line token: empty access token")
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, c.opts.ProfileURL, nil)
	if err != nil {
		return accountlink.Identity{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	var profile profileResponse
	if err := c.do(req, "profile", &profile); err != nil {
		return accountlink.Identity{}, err
	}
	if profile.UserID == "" {
		return accountlink.Identity{}, errors.New("line profile: empty userId")
	}
	return accountlink.Identity{ExternalID: profile.UserID, DisplayName: profile.DisplayName}, nil
}

func (c *Client) do(req *http.Request, step string, out any) error {
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("line %s: %w", step, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("line %s: %w", step, err)
	}
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("line %s: unexpected status %d", step, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return &accountlink.RejectedError{Step: step, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("line %s: decode: %w", step, err)
	}
	return nil
}

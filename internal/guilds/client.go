// Package guilds lists the Discord guilds visible to a signed-in user.
package guilds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultAPIBaseURL is the Discord REST API root.
const DefaultAPIBaseURL = "https://discord.com/api"

const (
	guildsPath       = "/users/@me/guilds"
	maxErrorBodySize = 512
)

var (
	// ErrMissingAccessToken indicates a caller without a provider access token.
	ErrMissingAccessToken = errors.New("guilds: access token is required")
	// ErrUnauthorized indicates the provider rejected the access token.
	ErrUnauthorized = errors.New("guilds: access token rejected")
	// ErrUpstream indicates any other provider failure.
	ErrUpstream = errors.New("guilds: provider request failed")
)

// Guild is the minimal guild data exposed to clients.
type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Owner       bool   `json:"owner"`
	Permissions string `json:"permissions"`
}

// ClientConfig configures the Discord client.
type ClientConfig struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client fetches guilds on behalf of a user.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient constructs a Client. The zero config targets the public Discord API.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, httpClient: cfg.HTTPClient, timeout: timeout}
}

// FetchGuilds returns the guilds of the user owning accessToken.
func (c *Client) FetchGuilds(ctx context.Context, accessToken string) ([]Guild, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, ErrMissingAccessToken
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if c.httpClient != nil {
		requestCtx = context.WithValue(requestCtx, oauth2.HTTPClient, c.httpClient)
	}
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(requestCtx, source)

	request, err := http.NewRequestWithContext(requestCtx, http.MethodGet, c.baseURL+guildsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case response.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodySize))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, response.StatusCode, strings.TrimSpace(string(body)))
	}

	var guilds []Guild
	if err := json.NewDecoder(response.Body).Decode(&guilds); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	if guilds == nil {
		guilds = []Guild{}
	}
	return guilds, nil
}

package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Criteria is what the engine ranks providers against.
type Criteria struct {
	ServiceType   string    `json:"serviceType"`
	Location      string    `json:"location"`
	PostalCode    string    `json:"postalCode,omitempty"`
	Urgency       string    `json:"urgency"`
	Budget        *float64  `json:"budget,omitempty"`
	MinRating     float64   `json:"minRating"`
	MaxDistanceKm float64   `json:"maxDistanceKm"`
	RequestedDate time.Time `json:"requestedDate"`
}

// Candidate is one ranked provider.
type Candidate struct {
	ProviderID string  `json:"providerId"`
	Score      float64 `json:"score"`
	Rating     float64 `json:"rating"`
	Distance   float64 `json:"distance"`
	HourlyRate float64 `json:"hourlyRate"`
}

type matchResponse struct {
	Providers []Candidate `json:"providers"`
	Success   bool        `json:"success"`
	Error     string      `json:"error,omitempty"`
}

// Client calls the matching engine's matchProviders endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Options configures authentication. TokenURL with client credentials wins
// over a static APIKey.
type Options struct {
	BaseURL      string
	APIKey       string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// NewClient builds a client from opts.
func NewClient(ctx context.Context, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var hc *http.Client
	switch {
	case opts.TokenURL != "":
		cc := clientcredentials.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			TokenURL:     opts.TokenURL,
			Scopes:       []string{"matching"},
		}
		hc = cc.Client(ctx)
	case opts.APIKey != "":
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.APIKey, TokenType: "Bearer"}))
	default:
		hc = &http.Client{}
	}
	hc.Timeout = timeout

	return NewClientWithHTTP(opts.BaseURL, hc)
}

// NewClientWithHTTP uses hc as is.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: hc}
}

// MatchProviders returns ranked candidates for c. An engine-level failure
// (success=false) is an error; an empty list is not.
func (c *Client) MatchProviders(ctx context.Context, crit Criteria) ([]Candidate, error) {
	body, err := json.Marshal(crit)
	if err != nil {
		return nil, fmt.Errorf("matching.MatchProviders: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/match-providers", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("matching.MatchProviders: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("matching.MatchProviders: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("matching.MatchProviders: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("matching.MatchProviders: decode: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("matching.MatchProviders: engine error: %s", out.Error)
	}
	return out.Providers, nil
}

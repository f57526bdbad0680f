// Package geocode resolves postal addresses to coordinates through an
// external HTTP lookup service.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cleanconnect/cleanconnect/internal/pkg/env"
)

var ErrNoMatch = errors.New("geocode: no match for address")

// Query is the address part the lookup service understands.
type Query struct {
	PostalCode  string
	HouseNumber string
	Addition    string
}

// Result is a resolved address. Street and City may fill gaps in the
// submitted address.
type Result struct {
	Street string  `json:"street"`
	City   string  `json:"city"`
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
}

// Geocoder is implemented by Client and by test fakes.
type Geocoder interface {
	Lookup(ctx context.Context, q Query) (*Result, error)
}

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	return &Client{
		BaseURL: strings.TrimSpace(env.GetEnv("GEOCODER_URL", "")),
		APIKey:  strings.TrimSpace(env.GetEnv("GEOCODER_API_KEY", "")),
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Lookup calls GET {BaseURL}?postcode=..&number=..[&addition=..].
func (c *Client) Lookup(ctx context.Context, q Query) (*Result, error) {
	if c.BaseURL == "" {
		return nil, errors.New("geocode: GEOCODER_URL not configured")
	}
	if strings.TrimSpace(q.PostalCode) == "" || strings.TrimSpace(q.HouseNumber) == "" {
		return nil, errors.New("geocode: postal code and house number are required")
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	params := u.Query()
	params.Set("postcode", q.PostalCode)
	params.Set("number", q.HouseNumber)
	if q.Addition != "" {
		params.Set("addition", q.Addition)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoMatch
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("geocode request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out Result
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("geocode decode: %w", err)
	}
	if out.Lat == 0 && out.Lon == 0 {
		return nil, ErrNoMatch
	}
	return &out, nil
}

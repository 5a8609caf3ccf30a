// Package altitude resolves ground height for a coordinate. Lookups are
// best-effort: callers treat an error or a nil height as "no altitude".
package altitude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"
)

var ErrUnavailable = errors.New("altitude service unavailable")

type Height struct {
	Meters *float64 `json:"height_meters"`
}

type Provider interface {
	Lookup(ctx context.Context, p orb.Point) (Height, error)
}

// Nop never knows the altitude. It is used when no service is configured.
type Nop struct{}

func (Nop) Lookup(context.Context, orb.Point) (Height, error) {
	return Height{}, nil
}

// Client queries an Open-Elevation compatible endpoint:
// GET {url}?locations=lat,lon -> {"results":[{"elevation":123.4}]}.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{url: baseURL, http: &http.Client{Timeout: timeout}}
}

type lookupResponse struct {
	Results []struct {
		Elevation any `json:"elevation"`
	} `json:"results"`
}

func (c *Client) Lookup(ctx context.Context, p orb.Point) (Height, error) {
	q := url.Values{}
	q.Set("locations", strconv.FormatFloat(p.Lat(), 'f', 6, 64)+","+strconv.FormatFloat(p.Lon(), 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"?"+q.Encode(), nil)
	if err != nil {
		return Height{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Height{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Height{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Height{}, fmt.Errorf("decode altitude response: %w", err)
	}
	if len(body.Results) == 0 {
		return Height{}, nil
	}
	// Anything that is not a finite number is reported as unknown.
	v, ok := body.Results[0].Elevation.(float64)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return Height{}, nil
	}
	return Height{Meters: &v}, nil
}

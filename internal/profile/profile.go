// Package profile is a client for the REST profile service that holds
// display names, bios and photos of dating profiles.
package profile

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

	"github.com/soyeahso/duet/internal/logging"
	"github.com/soyeahso/duet/internal/version"
)

// ErrNotFound is returned when the service has no profile for a DID.
var ErrNotFound = errors.New("profile: not found")

// Profile is a public dating profile.
type Profile struct {
	DID         string   `json:"did"`
	DisplayName string   `json:"displayName"`
	Bio         string   `json:"bio,omitempty"`
	Age         int      `json:"age,omitempty"`
	Location    string   `json:"location,omitempty"`
	Interests   []string `json:"interests,omitempty"`
	Prompts     []Prompt `json:"prompts,omitempty"`
}

// Prompt is a question/answer pair shown on a profile.
type Prompt struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Photo is a profile photo.
type Photo struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Primary bool   `json:"primary,omitempty"`
}

// APIError is a non-success response from the profile service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("profile service: %d %s", e.StatusCode, e.Message)
}

// maxResponseBytes caps how much of a response body is read.
var maxResponseBytes int64 = 4 << 20

// Client talks to the profile service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logging.Logger
}

// NewClient creates a profile client. apiKey may be empty for services
// that do not require auth.
func NewClient(baseURL, apiKey string, log *logging.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log.Sub("profile"),
	}
}

// GetProfile fetches the profile of did.
func (c *Client) GetProfile(ctx context.Context, did string) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(did), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfilePhotos lists the photos of did, primary photo first.
func (c *Client) GetProfilePhotos(ctx context.Context, did string) ([]Photo, error) {
	var out struct {
		Photos []Photo `json:"photos"`
	}
	if err := c.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(did)+"/photos", nil, &out); err != nil {
		return nil, err
	}
	photos := make([]Photo, 0, len(out.Photos))
	for _, p := range out.Photos {
		if p.Primary {
			photos = append([]Photo{p}, photos...)
		} else {
			photos = append(photos, p)
		}
	}
	return photos, nil
}

// UpdateProfile patches the given fields of did's profile and returns the
// updated profile.
func (c *Client) UpdateProfile(ctx context.Context, did string, fields map[string]any) (*Profile, error) {
	if len(fields) == 0 {
		return nil, errors.New("profile: no fields to update")
	}
	var p Profile
	if err := c.do(ctx, http.MethodPatch, "/profiles/"+url.PathEscape(did), fields, &p); err != nil {
		return nil, err
	}
	c.log.Info().Str("did", did).Int("fields", len(fields)).Msg("profile updated")
	return &p, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("profile request")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

package docstore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/duet/internal/version"
)

// HTTPStore talks to a hosted datastore REST API.
//
//	POST {endpoint}/api/rest/v1/ds/{schema}        {"record": {...}}
//	POST {endpoint}/api/rest/v1/ds/query/{schema}  {"query": {...}, "options": {...}}
//
// The schema URL is base64url encoded into the path.
type HTTPStore struct {
	endpoint string
	token    string
	context  string
	client   *http.Client
	timeout  time.Duration
}

// maxResponseBytes caps how much of a response body is read.
var maxResponseBytes int64 = 16 << 20

// HTTPOption configures an HTTPStore.
type HTTPOption func(*HTTPStore)

// WithToken sets the bearer token.
func WithToken(token string) HTTPOption {
	return func(s *HTTPStore) { s.token = token }
}

// WithContextName sets the application context the records belong to.
func WithContextName(name string) HTTPOption {
	return func(s *HTTPStore) { s.context = name }
}

// WithHTTPClient replaces the default client. The client is used as is;
// WithTimeout does not change it.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPStore) { s.client = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewHTTPStore creates a store client for endpoint.
func NewHTTPStore(endpoint string, opts ...HTTPOption) *HTTPStore {
	s := &HTTPStore{
		endpoint: strings.TrimRight(endpoint, "/"),
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: s.timeout}
	}
	return s
}

type createResponse struct {
	Record struct {
		ID string `json:"_id"`
	} `json:"record"`
}

type queryResponse struct {
	Items []json.RawMessage `json:"items"`
}

// Create stores doc under schema.
func (s *HTTPStore) Create(ctx context.Context, schema string, doc any) (string, error) {
	var resp createResponse
	if err := s.post(ctx, "/api/rest/v1/ds/"+encodeSchema(schema), map[string]any{"record": doc}, &resp); err != nil {
		return "", err
	}
	if resp.Record.ID == "" {
		return "", fmt.Errorf("docstore: create response missing record id")
	}
	return resp.Record.ID, nil
}

// Query returns documents under schema matching filter.
func (s *HTTPStore) Query(ctx context.Context, schema string, filter Filter, opts QueryOptions) ([]Record, error) {
	order := "asc"
	if opts.Descending {
		order = "desc"
	}
	options := map[string]any{
		"sort": []map[string]string{{"insertedAt": order}},
	}
	if opts.Limit > 0 {
		options["limit"] = opts.Limit
	}
	query := map[string]string(filter)
	if query == nil {
		query = map[string]string{}
	}

	var resp queryResponse
	if err := s.post(ctx, "/api/rest/v1/ds/query/"+encodeSchema(schema), map[string]any{
		"query":   query,
		"options": options,
	}, &resp); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(resp.Items))
	for _, item := range resp.Items {
		rec, err := ParseRecord(schema, item)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *HTTPStore) post(ctx context.Context, path string, body, result any) error {
	if s.token == "" {
		return ErrUnauthenticated
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("docstore: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("docstore: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Authorization", "Bearer "+s.token)
	if s.context != "" {
		req.Header.Set("X-Context-Name", s.context)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("docstore: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("docstore: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("docstore: decode response: %w", err)
	}
	return nil
}

func encodeSchema(schema string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(schema))
}

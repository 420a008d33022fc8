// Package msgraph is a small Microsoft Graph REST client shared by the
// Outlook and SharePoint tools.
package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/shineum/skillkit/internal/cli"
)

// DefaultBaseURL is the Graph v1.0 endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// Client issues authenticated requests against Graph.
// @MX:ANCHOR: External system integration point for Microsoft Graph API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	service    string
}

// New returns a client sending token as the bearer credential.
func New(token string, httpClient *http.Client) *Client {
	return NewWithBaseURL(DefaultBaseURL, token, httpClient)
}

// NewWithBaseURL returns a client rooted at baseURL, used for testing and
// for other OData APIs such as Dataverse.
func NewWithBaseURL(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		service:    "Graph",
	}
}

// WithService sets the name used in error messages.
func (c *Client) WithService(name string) *Client {
	c.service = name
	return c
}

// Request describes one call. Path is relative to the base URL unless it is
// an absolute URL (as in @odata.nextLink).
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header

	// JSON is encoded as the request body when non-nil.
	JSON any
	// Body is sent verbatim when JSON is nil.
	Body        io.Reader
	ContentType string
}

// Do performs req and decodes a JSON response into out when out is non-nil.
// Non-2xx responses become *cli.APIError.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("failed to decode %s response: %w", c.service, err)
	}
	return nil
}

// Get is Do with GET.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post is Do with POST and a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, JSON: body}, out)
}

// Create POSTs body to a collection and returns the new entity's URL from
// the OData-EntityId header, falling back to Location.
func (c *Client) Create(ctx context.Context, path string, body any) (string, error) {
	resp, err := c.send(ctx, Request{Method: http.MethodPost, Path: path, JSON: body})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if id := resp.Header.Get("OData-EntityId"); id != "" {
		return id, nil
	}
	return resp.Header.Get("Location"), nil
}

// Patch is Do with PATCH and a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, JSON: body}, out)
}

// Delete is Do with DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, nil)
}

// Download streams the response body of a GET to w and returns the number of
// bytes written. Redirects to pre-authenticated download URLs are followed.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read %s download: %w", c.service, err)
	}
	return n, nil
}

func (c *Client) send(ctx context.Context, r Request) (*http.Response, error) {
	target := r.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(target, "/")
	}
	if len(r.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		// OData expects %20 rather than '+' for spaces.
		target += sep + strings.ReplaceAll(r.Query.Encode(), "+", "%20")
	}

	body := r.Body
	contentType := r.ContentType
	if r.JSON != nil {
		data, err := json.Marshal(r.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("client-request-id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &cli.APIError{Service: c.service, Message: fmt.Sprintf("HTTP request failed: %v", err)}
	}
	slog.Debug("graph request", "service", c.service, "method", r.Method, "url", target, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, classifyError(c.service, resp.StatusCode, data)
	}
	return resp, nil
}

// errorResponse is the OData error envelope.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// classifyError turns a failed response into an APIError, unwrapping the
// OData error message when the body carries one.
func classifyError(service string, status int, body []byte) *cli.APIError {
	msg := strings.TrimSpace(string(body))

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
		if errResp.Error.Code != "" {
			msg = errResp.Error.Code + ": " + msg
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	return &cli.APIError{Service: service, Status: status, Message: msg}
}

// Page is a collection response.
type Page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink,omitempty"`
}

// List fetches a collection, following @odata.nextLink until limit items are
// collected. A limit of 0 or less means one page.
func List[T any](ctx context.Context, c *Client, path string, query url.Values, limit int) ([]T, error) {
	var items []T
	next := path
	q := query
	for next != "" {
		var page Page[T]
		if err := c.Get(ctx, next, q, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Value...)
		if limit <= 0 || len(items) >= limit {
			break
		}
		next, q = page.NextLink, nil
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

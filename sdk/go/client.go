package civicdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Civicdesk HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Case represents the API case model (partial).
type Case struct {
	ID           string `json:"id"`
	CaseCode     string `json:"case_code"`
	SectorID     string `json:"sector_id"`
	Severity     string `json:"severity"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	LocationName string `json:"location_name"`
	Origin       string `json:"origin"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// HistoryEntry is one audit-log row.
type HistoryEntry struct {
	ID        int64  `json:"id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	ActorID   string `json:"actor_id"`
	ActorRole string `json:"actor_role"`
	Note      string `json:"note"`
	TS        string `json:"ts"`
}

// Comment on a case.
type Comment struct {
	ID         string `json:"id"`
	IssueID    string `json:"issue_id"`
	AuthorID   string `json:"author_id"`
	AuthorRole string `json:"author_role"`
	Body       string `json:"body"`
	Internal   bool   `json:"internal"`
	CreatedAt  string `json:"created_at"`
}

// SubmitCaseInput carries the fields of a new report.
type SubmitCaseInput struct {
	SectorID        string   `json:"sector_id"`
	SubSector       string   `json:"sub_sector,omitempty"`
	Category        string   `json:"category,omitempty"`
	Severity        string   `json:"severity,omitempty"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	LocationName    string   `json:"location_name"`
	PhotoURLs       []string `json:"photo_urls,omitempty"`
	ReporterName    string   `json:"reporter_name,omitempty"`
	ReporterContact string   `json:"reporter_contact,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedCases wraps list responses with cursors.
type PaginatedCases struct {
	Items      []Case `json:"items"`
	NextCursor string `json:"next_cursor"`
}

// SubmitCase files a new issue report.
func (c *Client) SubmitCase(ctx context.Context, input SubmitCaseInput) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodPost, "cases", input, &resp)
	return resp, err
}

// GetCase fetches a case by id or case code.
func (c *Client) GetCase(ctx context.Context, key string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodGet, "cases/"+url.PathEscape(key), nil, &resp)
	return resp, err
}

// ListCases returns a page of cases (staff).
func (c *Client) ListCases(ctx context.Context, status string, limit int, cursor string) (PaginatedCases, error) {
	endpoint := "cases"
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedCases
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Transition posts a workflow action such as acknowledge, forward or close.
func (c *Client) Transition(ctx context.Context, key, action, note string) (Case, error) {
	var resp Case
	endpoint := fmt.Sprintf("cases/%s/%s", url.PathEscape(key), action)
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"note": note}, &resp)
	return resp, err
}

// Assign moves a case to a task force member.
func (c *Client) Assign(ctx context.Context, key, taskForceID, note string) (Case, error) {
	var resp Case
	endpoint := fmt.Sprintf("cases/%s/assign", url.PathEscape(key))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"task_force_id": taskForceID, "note": note}, &resp)
	return resp, err
}

// History returns the case audit trail (staff).
func (c *Client) History(ctx context.Context, key string) ([]HistoryEntry, error) {
	var resp []HistoryEntry
	endpoint := fmt.Sprintf("cases/%s/history", url.PathEscape(key))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AddComment attaches a staff comment.
func (c *Client) AddComment(ctx context.Context, key, body string, internal bool) (Comment, error) {
	var resp Comment
	endpoint := fmt.Sprintf("cases/%s/comments", url.PathEscape(key))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"body": body, "internal": internal}, &resp)
	return resp, err
}

// Comments lists the case thread visible to the caller.
func (c *Client) Comments(ctx context.Context, key string) ([]Comment, error) {
	var resp []Comment
	endpoint := fmt.Sprintf("cases/%s/comments", url.PathEscape(key))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

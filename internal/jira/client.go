// Package jira is a thin, stateless client for the remote tracker's
// REST API. It knows three operations: fetch one issue with its change
// history, search for direct hierarchical children, and batch-query
// last-updated timestamps for freshness checks.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RalfNiem/business-epic-analyzer/internal/types"
)

// DefaultTimeout bounds every request to the tracker.
const DefaultTimeout = 60 * time.Second

// BulkChunkSize is the maximum number of keys per batched timestamp
// query. Larger batches are split transparently.
const BulkChunkSize = 200

// ErrMissingToken is returned by NewClient when no API token is configured.
var ErrMissingToken = errors.New("jira: access token is not configured")

// RemoteError wraps any transport or HTTP failure talking to the tracker.
// Callers use errors.As to decide whether a key is worth retrying.
type RemoteError struct {
	Op     string // "fetch issue", "find children", "bulk updated"
	Key    string // issue key or parent key, if applicable
	Status int    // HTTP status, 0 for transport failures
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("jira: %s %s: HTTP %d", e.Op, e.Key, e.Status)
	}
	return fmt.Sprintf("jira: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsRemote reports whether err is (or wraps) a RemoteError.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// Client issues requests against one tracker instance. It holds no
// per-run state and is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpc.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client (used by tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a tracker client. The token is required; a missing
// token is a configuration error that should abort startup.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: DefaultTimeout},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured tracker URL.
func (c *Client) BaseURL() string { return c.baseURL }

// RawIssue is the untransformed payload of GET /issue/{key}. Fields stay
// raw JSON; the transformer decodes them after applying the name map.
type RawIssue struct {
	Key       string                     `json:"key"`
	Names     map[string]string          `json:"names"`
	Fields    map[string]json.RawMessage `json:"fields"`
	Changelog *Changelog                 `json:"changelog"`
}

// TypeName extracts the issue type name, honoring the server-supplied
// field name map. Returns "" when the field is absent.
func (r *RawIssue) TypeName() string {
	raw, ok := r.Fields["issuetype"]
	if !ok {
		// The field may already carry its display name.
		for id, name := range r.Names {
			if name == "Issue Type" {
				raw, ok = r.Fields[id]
				break
			}
		}
		if !ok {
			raw, ok = r.Fields["Issue Type"]
		}
	}
	if !ok {
		return ""
	}
	var v struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return v.Name
}

// Changelog is the expand=changelog portion of a raw issue.
type Changelog struct {
	Histories []ChangeEntry `json:"histories"`
}

// ChangeEntry is one changelog entry with its items.
type ChangeEntry struct {
	Author  Actor        `json:"author"`
	Created string       `json:"created"`
	Items   []ChangeItem `json:"items"`
}

// Actor identifies who made a change.
type Actor struct {
	DisplayName string `json:"displayName"`
}

// ChangeItem is one field transition inside a changelog entry.
type ChangeItem struct {
	Field      string `json:"field"`
	FromString string `json:"fromString"`
	ToString   string `json:"toString"`
}

// ChildRef is one direct hierarchical child returned by FindChildren.
type ChildRef struct {
	Key      string
	Title    string
	Relation types.RelationKind
}

// Issue types whose children hang off the "Parent Link" field rather
// than the "Epic Link" field.
var parentLinkTypes = map[string]bool{
	"Business Initiative": true,
	"Business Epic":       true,
	"Portfolio Epic":      true,
	"Initiative":          true,
}

// FetchIssue fetches one raw record including its full change history.
func (c *Client) FetchIssue(ctx context.Context, key string) (*RawIssue, error) {
	u := fmt.Sprintf("%s/rest/api/2/issue/%s?expand=names,changelog", c.baseURL, url.PathEscape(key))

	start := time.Now()
	body, err := c.get(ctx, u)
	c.log.Debug("fetch issue", "key", key, "elapsed", time.Since(start))
	if err != nil {
		return nil, c.remoteErr("fetch issue", key, err)
	}

	var raw RawIssue
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, c.remoteErr("fetch issue", key, fmt.Errorf("decoding response: %w", err))
	}
	return &raw, nil
}

// FindChildren queries for direct hierarchical children of the given
// parent. The JQL clause depends on the parent type: epics use the
// "Epic Link" field, portfolio-level types use "Parent Link". Types with
// no hierarchical children return nil without a network call.
func (c *Client) FindChildren(ctx context.Context, parentKey, parentType string) ([]ChildRef, error) {
	var jql string
	var relation types.RelationKind
	switch {
	case parentType == "Epic":
		jql = fmt.Sprintf(`"Epic Link" = %q ORDER BY created DESC`, parentKey)
		relation = types.RelationIssueInEpic
	case parentLinkTypes[parentType]:
		jql = fmt.Sprintf(`"Parent Link" = %q ORDER BY created DESC`, parentKey)
		relation = types.RelationChild
	default:
		return nil, nil
	}

	q := url.Values{}
	q.Set("jql", jql)
	q.Set("fields", "summary,status,issuetype")
	u := c.baseURL + "/rest/api/2/search?" + q.Encode()

	body, err := c.get(ctx, u)
	if err != nil {
		return nil, c.remoteErr("find children", parentKey, err)
	}

	var resp struct {
		Issues []struct {
			Key    string `json:"key"`
			Fields struct {
				Summary string `json:"summary"`
			} `json:"fields"`
		} `json:"issues"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.remoteErr("find children", parentKey, fmt.Errorf("decoding response: %w", err))
	}

	children := make([]ChildRef, 0, len(resp.Issues))
	for _, i := range resp.Issues {
		children = append(children, ChildRef{Key: i.Key, Title: i.Fields.Summary, Relation: relation})
	}
	return children, nil
}

// BulkUpdatedTimes returns the server-side "last updated" timestamp for
// each key, querying in chunks of BulkChunkSize. Keys the server does
// not resolve are simply absent from the result; that is not an error.
// On a chunk failure the partial result is returned together with the
// error so freshness checks can degrade instead of aborting.
func (c *Client) BulkUpdatedTimes(ctx context.Context, keys []string) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(keys))
	var firstErr error

	for start := 0; start < len(keys); start += BulkChunkSize {
		end := start + BulkChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		quoted := make([]string, len(chunk))
		for i, k := range chunk {
			quoted[i] = fmt.Sprintf("%q", k)
		}
		q := url.Values{}
		q.Set("jql", fmt.Sprintf("issuekey in (%s)", strings.Join(quoted, ", ")))
		q.Set("fields", "updated")
		q.Set("maxResults", fmt.Sprint(len(chunk)))
		u := c.baseURL + "/rest/api/2/search?" + q.Encode()

		body, err := c.get(ctx, u)
		if err != nil {
			if firstErr == nil {
				firstErr = c.remoteErr("bulk updated", "", err)
			}
			c.log.Warn("bulk timestamp chunk failed", "keys", len(chunk), "error", err)
			continue
		}

		var resp struct {
			Issues []struct {
				Key    string `json:"key"`
				Fields struct {
					Updated string `json:"updated"`
				} `json:"fields"`
			} `json:"issues"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			if firstErr == nil {
				firstErr = c.remoteErr("bulk updated", "", fmt.Errorf("decoding response: %w", err))
			}
			continue
		}
		for _, i := range resp.Issues {
			if t, ok := parseTime(i.Fields.Updated); ok {
				out[i.Key] = t
			}
		}
	}
	return out, firstErr
}

// httpStatusError carries a non-2xx status through to remoteErr.
type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string { return fmt.Sprintf("HTTP %d", e.status) }

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{status: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) remoteErr(op, key string, err error) error {
	var se *httpStatusError
	if errors.As(err, &se) {
		return &RemoteError{Op: op, Key: key, Status: se.status, Err: err}
	}
	return &RemoteError{Op: op, Key: key, Err: err}
}

// parseTime handles the tracker's timestamp format plus RFC3339.
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02T15:04:05.000-0700", time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

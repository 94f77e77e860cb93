package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, "test-token")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, srv
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient("https://jira.example.com", ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("NewClient with empty token returned %v, want ErrMissingToken", err)
	}
}

func TestFetchIssue(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/issue/BEMABU-1" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("expand"); got != "names,changelog" {
			t.Errorf("expand = %q, want names,changelog", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{
			"key": "BEMABU-1",
			"names": {"customfield_100": "Story Points"},
			"fields": {"issuetype": {"name": "Business Epic"}, "customfield_100": 5},
			"changelog": {"histories": [{"author": {"displayName": "R. N."}, "created": "2024-01-02T10:00:00.000+0100", "items": [{"field": "status", "fromString": "Open", "toString": "In Progress"}]}]}
		}`)
	}))

	raw, err := c.FetchIssue(context.Background(), "BEMABU-1")
	if err != nil {
		t.Fatalf("FetchIssue: %v", err)
	}
	if raw.Key != "BEMABU-1" {
		t.Errorf("Key = %q", raw.Key)
	}
	if got := raw.TypeName(); got != "Business Epic" {
		t.Errorf("TypeName() = %q, want Business Epic", got)
	}
	if len(raw.Changelog.Histories) != 1 || raw.Changelog.Histories[0].Items[0].Field != "status" {
		t.Errorf("changelog not decoded: %+v", raw.Changelog)
	}
}

func TestFetchIssueHTTPError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.FetchIssue(context.Background(), "BEMABU-1")
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("want RemoteError, got %v", err)
	}
	if re.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", re.Status)
	}
	if !IsRemote(err) {
		t.Error("IsRemote should report true")
	}
}

func TestFindChildrenQueryClause(t *testing.T) {
	var gotJQL string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotJQL = r.URL.Query().Get("jql")
		fmt.Fprint(w, `{"issues": [{"key": "STORY-1", "fields": {"summary": "First story"}}]}`)
	}))

	// Epics search via "Epic Link" and tag children issue_in_epic.
	children, err := c.FindChildren(context.Background(), "EPIC-1", "Epic")
	if err != nil {
		t.Fatalf("FindChildren: %v", err)
	}
	if want := `"Epic Link" = "EPIC-1" ORDER BY created DESC`; gotJQL != want {
		t.Errorf("jql = %q, want %q", gotJQL, want)
	}
	if len(children) != 1 || children[0].Key != "STORY-1" || string(children[0].Relation) != "issue_in_epic" {
		t.Errorf("children = %+v", children)
	}

	// Portfolio types search via "Parent Link" and tag children child.
	children, err = c.FindChildren(context.Background(), "BEMABU-1", "Business Epic")
	if err != nil {
		t.Fatalf("FindChildren: %v", err)
	}
	if want := `"Parent Link" = "BEMABU-1" ORDER BY created DESC`; gotJQL != want {
		t.Errorf("jql = %q, want %q", gotJQL, want)
	}
	if len(children) != 1 || string(children[0].Relation) != "child" {
		t.Errorf("children = %+v", children)
	}

	// Leaf types cannot have hierarchical children: no request at all.
	gotJQL = ""
	children, err = c.FindChildren(context.Background(), "STORY-1", "Story")
	if err != nil || children != nil {
		t.Errorf("FindChildren(Story) = %v, %v; want nil, nil", children, err)
	}
	if gotJQL != "" {
		t.Error("FindChildren(Story) should not issue a search request")
	}
}

func TestBulkUpdatedTimesChunking(t *testing.T) {
	var requests int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// Answer only for one known key; everything else stays absent.
		fmt.Fprint(w, `{"issues": [{"key": "BEMABU-1", "fields": {"updated": "2024-01-02T00:00:00.000+0000"}}]}`)
	}))

	keys := make([]string, 0, BulkChunkSize+1)
	keys = append(keys, "BEMABU-1")
	for i := 0; i < BulkChunkSize; i++ {
		keys = append(keys, fmt.Sprintf("BEMABU-%d", i+2))
	}

	got, err := c.BulkUpdatedTimes(context.Background(), keys)
	if err != nil {
		t.Fatalf("BulkUpdatedTimes: %v", err)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2 (chunked at %d)", requests, BulkChunkSize)
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if ts, ok := got["BEMABU-1"]; !ok || !ts.Equal(want) {
		t.Errorf("got[BEMABU-1] = %v, %v; want %v", ts, ok, want)
	}
	if _, ok := got["BEMABU-2"]; ok {
		t.Error("keys the server does not resolve must be absent, not zero")
	}
}

func TestBulkUpdatedTimesPartialFailure(t *testing.T) {
	var requests int
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"issues": [{"key": "LAST-1", "fields": {"updated": "2024-06-01T00:00:00.000+0000"}}]}`)
	}))

	keys := make([]string, 0, BulkChunkSize+1)
	for i := 0; i < BulkChunkSize; i++ {
		keys = append(keys, fmt.Sprintf("FAIL-%d", i+1))
	}
	keys = append(keys, "LAST-1")

	got, err := c.BulkUpdatedTimes(context.Background(), keys)
	if err == nil {
		t.Fatal("want an error for the failed chunk")
	}
	if !IsRemote(err) {
		t.Errorf("want RemoteError, got %v", err)
	}
	if _, ok := got["LAST-1"]; !ok {
		t.Error("partial results from surviving chunks must be returned")
	}
}

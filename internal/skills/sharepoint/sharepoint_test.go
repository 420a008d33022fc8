package sharepoint

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/skillkit/internal/cli/clitest"
	"github.com/shineum/skillkit/internal/config"
)

const siteID = "contoso.sharepoint.com,1111,2222"

func newGraph(t *testing.T, handler http.HandlerFunc) (*config.Config, clitest.Options) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := clitest.Config(t)
	cfg.Microsoft.GraphURL = server.URL
	cfg.Microsoft.AccessToken = "graph-token"
	return cfg, clitest.Options{HTTPClient: server.Client()}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestItemPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"", "/sites/" + siteID + "/drive/root"},
		{"/", "/sites/" + siteID + "/drive/root"},
		{"Shared Documents/q1 report.xlsx", "/sites/" + siteID + "/drive/root:/Shared%20Documents/q1%20report.xlsx:"},
		{"/Docs/", "/sites/" + siteID + "/drive/root:/Docs:"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, itemPath(siteID, tt.path), tt.path)
	}
}

func TestSites(t *testing.T) {
	cfg, opts := newGraph(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites", r.URL.Path)
		assert.Equal(t, "marketing team", r.URL.Query().Get("search"))
		writeJSON(w, map[string]any{"value": []site{{ID: siteID, DisplayName: "Marketing", WebURL: "https://contoso.sharepoint.com/sites/mkt"}}})
	})

	res := clitest.Run(t, Program(), cfg, opts, "sites", "marketing", "team", "--format", "csv")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Equal(t, "id,name,url\n\"contoso.sharepoint.com,1111,2222\",Marketing,https://contoso.sharepoint.com/sites/mkt\n", res.Stdout)
}

func TestLs(t *testing.T) {
	cfg, opts := newGraph(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/"+siteID+"/drive/root:/Shared Documents:/children", r.URL.Path)
		writeJSON(w, map[string]any{"value": []map[string]any{
			{"name": "Plans", "folder": map[string]int{"childCount": 3}, "lastModifiedDateTime": "2026-01-05T10:00:00Z"},
			{"name": "budget.xlsx", "size": 2048, "lastModifiedDateTime": "2026-01-06T10:00:00Z"},
		}})
	})

	res := clitest.Run(t, Program(), cfg, opts, "ls", siteID, "Shared Documents", "--format", "json")
	require.Equal(t, 0, res.Code, res.Stderr)
	lines := splitLines(res.Stdout)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"name":"Plans","type":"folder","size":"3 items"`)
	assert.Contains(t, lines[1], `"name":"budget.xlsx","type":"file","size":2048`)
}

func TestDownload(t *testing.T) {
	cfg, opts := newGraph(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/"+siteID+"/drive/root:/Docs/notes.txt:/content", r.URL.Path)
		_, _ = w.Write([]byte("meeting notes"))
	})
	out := filepath.Join(t.TempDir(), "copy.txt")

	res := clitest.Run(t, Program(), cfg, opts, "download", siteID, "Docs/notes.txt", "--out", out)
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Equal(t, "Downloaded Docs/notes.txt to "+out+" (13 bytes)\n", res.Stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "meeting notes", string(data))
}

func TestDownload_NotFoundLeavesNoFile(t *testing.T) {
	cfg, opts := newGraph(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"itemNotFound","message":"The resource could not be found."}}`))
	})
	dir := t.TempDir()
	out := filepath.Join(dir, "missing.txt")

	res := clitest.Run(t, Program(), cfg, opts, "download", siteID, "missing.txt", "--out", out)
	assert.Equal(t, 1, res.Code)
	assert.Contains(t, res.Stderr, "itemNotFound: The resource could not be found.")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpload(t *testing.T) {
	local := filepath.Join(t.TempDir(), "deck.pdf")
	require.NoError(t, os.WriteFile(local, []byte("%PDF-1.7"), 0o644))

	cfg, opts := newGraph(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/sites/"+siteID+"/drive/root:/Decks/deck.pdf:/content", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "%PDF-1.7", string(body))
		writeJSON(w, map[string]any{"name": "deck.pdf", "size": len(body), "webUrl": "https://contoso.sharepoint.com/deck.pdf"})
	})

	res := clitest.Run(t, Program(), cfg, opts, "upload", siteID, local, "Decks/deck.pdf")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Equal(t, "Uploaded deck.pdf (8 bytes)\nhttps://contoso.sharepoint.com/deck.pdf\n", res.Stdout)
}

func TestShare(t *testing.T) {
	cfg, opts := newGraph(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/"+siteID+"/drive/root:/Decks/deck.pdf:/createLink", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"type": "edit", "scope": "organization"}, body)
		writeJSON(w, map[string]any{"link": map[string]string{"webUrl": "https://contoso.sharepoint.com/:b:/s/x"}})
	})

	res := clitest.Run(t, Program(), cfg, opts, "share", siteID, "Decks/deck.pdf", "--type", "edit")
	require.Equal(t, 0, res.Code, res.Stderr)
	assert.Equal(t, "https://contoso.sharepoint.com/:b:/s/x\n", res.Stdout)
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		argv []string
		want string
	}{
		{[]string{"share", siteID, "a.txt", "--type", "owner"}, "--type must be view or edit"},
		{[]string{"share", siteID, "a.txt", "--scope", "users"}, "--scope must be organization or anonymous"},
		{[]string{"upload", siteID, "/does/not/exist", "x"}, "cannot read /does/not/exist"},
		{[]string{"download", siteID}, "missing argument <path>"},
	}
	for _, tt := range tests {
		res := clitest.Run(t, Program(), clitest.Config(t), clitest.Options{}, tt.argv...)
		assert.Equal(t, 1, res.Code, tt.argv)
		assert.Contains(t, res.Stderr, tt.want, tt.argv)
	}
}

func splitLines(s string) []string {
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

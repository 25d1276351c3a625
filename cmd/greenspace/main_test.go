package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func testConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "greenspace.yaml")
	body := "api:\n  base_url: " + baseURL + "\nstorage:\n  path: " + filepath.Join(dir, "local.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestGetPrintsIndentedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/product/42", r.URL.Path)
		w.Write([]byte(`{"id":42,"name":"Bonsai"}`))
	}))
	defer srv.Close()

	out := run(t, "--config", testConfig(t, srv.URL), "get", "/api/product/42")
	assert.Contains(t, out, "\"name\": \"Bonsai\"")
}

func TestCartAddAndList(t *testing.T) {
	path := testConfig(t, "http://localhost:0")

	run(t, "--config", path, "cart", "add", "p1", "--name", "Fern", "--price", "4.5", "-q", "2")
	out := run(t, "--config", path, "cart", "list")
	assert.Contains(t, out, "Fern")
	assert.Contains(t, out, "9.00")

	run(t, "--config", path, "cart", "clear")
	out = run(t, "--config", path, "cart", "list")
	assert.NotContains(t, out, "Fern")
}

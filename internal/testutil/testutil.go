// Package testutil provides testing utilities for findash.
package testutil

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// TestServer wraps httptest.Server with convenience methods
type TestServer struct {
	Server  *httptest.Server
	BaseURL string
	t       *testing.T
}

// ProjectRoot returns the root directory of the project.
// It works by finding the go.mod file.
func ProjectRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("could not get caller info")
	}

	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			panic("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// TestDataDir returns the path to the testdata directory
func TestDataDir() string {
	return filepath.Join(ProjectRoot(), "testdata")
}

// TestConfig returns environment overrides suitable for testing. Empty
// values clear anything inherited from the shell.
func TestConfig() map[string]string {
	return map[string]string{
		"FINDASH_LISTEN_ADDR":     ":0",
		"FINDASH_LOG_LEVEL":       "disabled",
		"FINDASH_CACHE_SIZE":      "64",
		"FINDASH_CACHE_TTL":       "1m",
		"FINDASH_SESSION_TTL":     "10m",
		"FINDASH_MAX_UPLOAD_MB":   "",
		"FINDASH_PASSPHRASE":      "",
		"FINDASH_RULES_FILE":      "",
		"FINDASH_DEBUG":           "",
		"FINDASH_THEME":           "",
		"FINDASH_ALLOWED_ORIGINS": "",
	}
}

// SetTestEnv sets the test environment for the duration of the test
func SetTestEnv(t *testing.T) {
	t.Helper()
	for k, v := range TestConfig() {
		t.Setenv(k, v)
	}
}

// NewTestServer creates a new test server using the application's router
func NewTestServer(t *testing.T, router http.Handler) *TestServer {
	t.Helper()

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestServer{
		Server:  server,
		BaseURL: server.URL,
		t:       t,
	}
}

// GET performs a GET request to the given path
func (ts *TestServer) GET(path string) *http.Response {
	ts.t.Helper()

	resp, err := http.Get(ts.BaseURL + path)
	if err != nil {
		ts.t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp
}

// GETWithQuery performs a GET request with query parameters
func (ts *TestServer) GETWithQuery(path string, query url.Values) *http.Response {
	ts.t.Helper()

	target := ts.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	resp, err := http.Get(target)
	if err != nil {
		ts.t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp
}

// POST performs a POST request to the given path
func (ts *TestServer) POST(path string, contentType string, body io.Reader) *http.Response {
	ts.t.Helper()

	resp, err := http.Post(ts.BaseURL+path, contentType, body)
	if err != nil {
		ts.t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

// Do sends a request with the given method and optional headers
func (ts *TestServer) Do(method, path, contentType string, body io.Reader, headers map[string]string) *http.Response {
	ts.t.Helper()

	req, err := http.NewRequest(method, ts.BaseURL+path, body)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// DELETE performs a DELETE request to the given path
func (ts *TestServer) DELETE(path string) *http.Response {
	ts.t.Helper()
	return ts.Do(http.MethodDelete, path, "", nil, nil)
}

// Upload sends data as the multipart "file" field with the given method
func (ts *TestServer) Upload(method, path, filename string, data []byte) *http.Response {
	ts.t.Helper()

	body, contentType := MultipartFile(ts.t, filename, data)
	return ts.Do(method, path, contentType, body, nil)
}

// MultipartFile builds a multipart body holding one "file" field
func MultipartFile(t testing.TB, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	ts.Server.Close()
}

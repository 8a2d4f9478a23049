// Package main provides a CLI tool for validating findash server endpoints.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"findash/internal/version"
	"findash/testdata"
)

var userAgent = version.Get().UserAgent()

type endpoint struct {
	path        string
	method      string
	contentType string
	contains    []string
}

// Paths are relative to the uploaded session unless they start with /api
var endpoints = []endpoint{
	// Session
	{path: "", method: "GET", contentType: "application/json", contains: []string{`"rows":95`}},
	{path: "/options", method: "GET", contentType: "application/json", contains: []string{`"categories"`, `"Santander"`}},

	// Dashboard
	{path: "/summary", method: "GET", contentType: "application/json", contains: []string{`"total_spent"`, `"months":18`}},
	{path: "/monthly", method: "GET", contentType: "application/json", contains: []string{`"balance"`}},
	{path: "/monthly?institution=BBVA&institution=Revolut", method: "GET", contentType: "application/json", contains: []string{`"empty":false`}},
	{path: "/groups/category", method: "GET", contentType: "application/json", contains: []string{`"percent"`}},
	{path: "/groups/institution", method: "GET", contentType: "application/json", contains: []string{`"Santander"`}},
	{path: "/groups/country?metric=expense", method: "GET", contentType: "application/json", contains: []string{`"Portugal"`}},
	{path: "/institutions/Revolut/monthly", method: "GET", contentType: "application/json", contains: nil},

	// Explorer
	{path: "/transactions", method: "GET", contentType: "application/json", contains: []string{`"count":95`}},
	{path: "/transactions?q=mercadona&per_page=10", method: "GET", contentType: "application/json", contains: []string{`"count":18`}},

	// Insights
	{path: "/forecast?months=6", method: "GET", contentType: "application/json", contains: []string{`"point"`, `"lower"`, `"upper"`}},
	{path: "/segments", method: "GET", contentType: "application/json", contains: []string{`"clusters"`}},
	{path: "/anomalies?contamination=0.1", method: "GET", contentType: "application/json", contains: []string{`"is_anomalous"`}},
	{path: "/recommendations", method: "GET", contentType: "application/json", contains: []string{`"savings_target"`}},

	// Snapshot
	{path: "/snapshot", method: "GET", contentType: "application/json", contains: []string{`"columns"`, `"index"`, `"data"`}},

	// API
	{path: "/api/theme", method: "GET", contentType: "application/json", contains: []string{`"name"`}},
	{path: "/api/health", method: "GET", contentType: "application/json", contains: []string{`"status":"ok"`}},
}

type result struct {
	endpoint endpoint
	status   int
	duration time.Duration
	err      error
	body     string
}

func main() {
	url := flag.String("url", "http://localhost:8080", "Base URL of the server to validate")
	verbose := flag.Bool("v", false, "Verbose output")
	timeout := flag.Int("timeout", 10, "Request timeout in seconds")
	keep := flag.Bool("keep", false, "Keep the uploaded session instead of deleting it")
	flag.Parse()

	client := &http.Client{
		Timeout: time.Duration(*timeout) * time.Second,
	}

	fmt.Printf("Validating server at %s\n", *url)

	sessionURL, err := uploadSample(client, *url)
	if err != nil {
		fmt.Printf("FAIL POST /api/sessions\n")
		fmt.Printf("     Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Uploaded %s to %s\n", testdata.SampleFilename, sessionURL)
	fmt.Printf("Testing %d endpoints...\n\n", len(endpoints))

	var passed, failed int
	var results []result

	for _, ep := range endpoints {
		base := *url + sessionURL
		if strings.HasPrefix(ep.path, "/api/") {
			base = *url
		}

		r := validateEndpoint(client, base, ep, *verbose)
		results = append(results, r)

		if r.err != nil {
			failed++
			fmt.Printf("FAIL %s %s\n", ep.method, ep.path)
			fmt.Printf("     Error: %v\n", r.err)
		} else if r.status != http.StatusOK {
			failed++
			fmt.Printf("FAIL %s %s\n", ep.method, ep.path)
			fmt.Printf("     Status: %d (expected 200)\n", r.status)
		} else {
			passed++
			if *verbose {
				fmt.Printf("PASS %s %s (%v)\n", ep.method, ep.path, r.duration)
			}
		}
	}

	if !*keep {
		if err := deleteSession(client, *url+sessionURL); err != nil {
			fmt.Printf("WARN could not delete session: %v\n", err)
		}
	}

	fmt.Printf("\n========================================\n")
	fmt.Printf("Results: %d passed, %d failed\n", passed, failed)

	if *verbose {
		var slowest result
		for _, r := range results {
			if r.duration > slowest.duration {
				slowest = r
			}
		}
		if slowest.duration > 0 {
			fmt.Printf("Slowest: %s (%v)\n", slowest.endpoint.path, slowest.duration)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

// uploadSample creates a session and returns its path
func uploadSample(client *http.Client, baseURL string) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", testdata.SampleFilename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(testdata.SampleCSV); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := newRequest(http.MethodPost, baseURL+"/api/sessions", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var created struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	if created.Session.ID == "" {
		return "", fmt.Errorf("response has no session id")
	}
	return "/api/sessions/" + created.Session.ID, nil
}

func newRequest(method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func deleteSession(client *http.Client, sessionURL string) error {
	req, err := newRequest(http.MethodDelete, sessionURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func validateEndpoint(client *http.Client, baseURL string, ep endpoint, verbose bool) result {
	start := time.Now()

	req, err := newRequest(ep.method, baseURL+ep.path, nil)
	if err != nil {
		return result{endpoint: ep, err: fmt.Errorf("failed to create request: %w", err)}
	}

	resp, err := client.Do(req)
	if err != nil {
		return result{endpoint: ep, err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result{endpoint: ep, err: fmt.Errorf("failed to read body: %w", err)}
	}

	duration := time.Since(start)

	r := result{
		endpoint: ep,
		status:   resp.StatusCode,
		duration: duration,
		body:     string(body),
	}

	// Validate content type
	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, ep.contentType) {
		r.err = fmt.Errorf("wrong content type: got %q, expected %q", ct, ep.contentType)
		return r
	}

	// Validate JSON if expected
	if ep.contentType == "application/json" {
		var js interface{}
		if err := json.Unmarshal(body, &js); err != nil {
			r.err = fmt.Errorf("invalid JSON: %w", err)
			return r
		}
	}

	// Validate required content
	for _, needle := range ep.contains {
		if !strings.Contains(string(body), needle) {
			r.err = fmt.Errorf("missing expected content: %q", needle)
			if verbose {
				r.err = fmt.Errorf("%w\n     Body: %.200s", r.err, r.body)
			}
			return r
		}
	}

	return r
}

// Package update checks a published version manifest and reports whether a
// newer release exists. It is consulted once at startup and never blocks a run.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Version is the running release.
var Version = "1.4.0"

// Manifest is the published version.json document.
type Manifest struct {
	Version     string   `json:"version"`
	DownloadURL string   `json:"download_url"`
	ReleaseDate string   `json:"release_date"`
	Changelog   []string `json:"changelog"`
}

// Result is the outcome of a check.
type Result struct {
	Current   string
	Remote    string
	Available bool
	Manifest  Manifest
}

// Check fetches the manifest at url and compares it with current.
func Check(ctx context.Context, client *http.Client, url, current string) (Result, error) {
	res := Result{Current: current}
	if url == "" {
		return res, fmt.Errorf("no update URL configured")
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return res, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return res, fmt.Errorf("update request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return res, fmt.Errorf("update server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&res.Manifest); err != nil {
		return res, fmt.Errorf("failed to decode manifest: %w", err)
	}
	res.Remote = res.Manifest.Version
	if res.Remote == "" {
		res.Remote = "0.0.0"
	}
	res.Available = CompareVersions(current, res.Remote) < 0
	return res, nil
}

// CompareVersions compares dotted numeric versions: -1 if a < b, 0 if
// equal, 1 if a > b. A leading "v" and non-numeric parts are ignored.
func CompareVersions(a, b string) int {
	pa, pb := parse(a), parse(b)
	for len(pa) < len(pb) {
		pa = append(pa, 0)
	}
	for len(pb) < len(pa) {
		pb = append(pb, 0)
	}
	for i := range pa {
		switch {
		case pa[i] < pb[i]:
			return -1
		case pa[i] > pb[i]:
			return 1
		}
	}
	return 0
}

func parse(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	var out []int
	for _, p := range strings.Split(v, ".") {
		n, err := strconv.Atoi(p)
		if err != nil {
			n = 0
		}
		out = append(out, n)
	}
	return out
}

// Package update checks for newer releases of the CLI.
package update

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-version"
)

// ReleasesURL is the endpoint describing the latest release.
const ReleasesURL = "https://api.github.com/repos/satishbabariya/queryable/releases/latest"

// Result is the outcome of an update check.
type Result struct {
	Current   string
	Latest    string
	Available bool
}

// Newer reports whether latest is a newer version than current. Both may
// carry a leading v.
func Newer(current, latest string) (bool, error) {
	c, err := version.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return false, fmt.Errorf("invalid version format: %w", err)
	}
	l, err := version.NewVersion(strings.TrimPrefix(latest, "v"))
	if err != nil {
		return false, fmt.Errorf("invalid latest version format: %w", err)
	}
	return c.LessThan(l), nil
}

// Check fetches the latest release from url and compares it with current.
func Check(ctx context.Context, client *http.Client, url, current string) (*Result, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch latest release: %s", resp.Status)
	}

	var release struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("failed to decode release: %w", err)
	}
	available, err := Newer(current, release.TagName)
	if err != nil {
		return nil, err
	}
	return &Result{Current: current, Latest: strings.TrimPrefix(release.TagName, "v"), Available: available}, nil
}

// DownloadURL returns the download URL for the current platform
func DownloadURL(v string) string {
	return fmt.Sprintf("https://github.com/satishbabariya/queryable/releases/download/v%s/queryable-%s-%s", v, runtime.GOOS, runtime.GOARCH)
}

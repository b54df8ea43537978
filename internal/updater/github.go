package updater

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// githubUnauthenticatedBudget matches GitHub's unauthenticated REST rate
// limit (60 requests/hour) so the updater's polling never trips it even
// when several components are checked back-to-back.
const githubUnauthenticatedBudget = rate.Limit(60.0 / 3600.0)

// release is the subset of the GitHub releases API response the updater
// needs to pick the latest eligible release.
type release struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
	HTMLURL    string `json:"html_url"`
	Body       string `json:"body"`
}

// GithubClient fetches release metadata from the GitHub REST API for the
// configured account.
type GithubClient struct {
	account    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGithubClient builds a GithubClient for the given GitHub account/org.
func NewGithubClient(account string) *GithubClient {
	return &GithubClient{
		account: account,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		limiter: rate.NewLimiter(githubUnauthenticatedBudget, 5),
	}
}

// LatestRelease is a GitHub release filtered to the caller's prerelease
// preference, as released for the given repo.
type LatestRelease struct {
	Version    string
	Prerelease bool
	URL        string
	Notes      string
}

// FetchLatest returns the newest non-draft release for repo, including
// prereleases only if includePrerelease is true. Releases are returned by
// GitHub newest-first, so the first eligible entry is the latest.
func (c *GithubClient) FetchLatest(ctx context.Context, repo string, includePrerelease bool) (LatestRelease, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return LatestRelease{}, fmt.Errorf("updater: waiting for github rate budget: %w", err)
	}

	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/releases", c.account, repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return LatestRelease{}, fmt.Errorf("updater: building releases request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LatestRelease{}, fmt.Errorf("updater: fetching releases for %s: %w", repo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return LatestRelease{}, fmt.Errorf("updater: github api returned status %d for %s", resp.StatusCode, repo)
	}

	var releases []release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return LatestRelease{}, fmt.Errorf("updater: decoding releases for %s: %w", repo, err)
	}

	for _, r := range releases {
		if r.Draft {
			continue
		}
		if r.Prerelease && !includePrerelease {
			continue
		}
		return LatestRelease{
			Version:    strings.TrimPrefix(r.TagName, "v"),
			Prerelease: r.Prerelease,
			URL:        r.HTMLURL,
			Notes:      r.Body,
		}, nil
	}

	kind := "non-prerelease"
	if includePrerelease {
		kind = "prerelease or non-prerelease"
	}
	return LatestRelease{}, fmt.Errorf("updater: no %s releases found for %s", kind, repo)
}

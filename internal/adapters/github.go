package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/repoyield/repoyield/internal/analysis"
	apperrors "github.com/repoyield/repoyield/internal/errors"
	"github.com/repoyield/repoyield/internal/monitoring"
	"github.com/repoyield/repoyield/internal/resilience"
)

// Service names registered with the resilience layer.
const (
	ServiceGitHub = "github-api"
	ServiceMail   = "mail-api"
)

const defaultGitHubBaseURL = "https://api.github.com"

// Dependency manifests fetched for signal detection when present in
// the file listing.
var snapshotManifests = []string{"package.json", "requirements.txt", "go.mod"}

// githubRepo is the subset of the repository resource the snapshot needs
type githubRepo struct {
	Name            string `json:"name"`
	FullName        string `json:"full_name"`
	HTMLURL         string `json:"html_url"`
	Description     string `json:"description"`
	Language        string `json:"language"`
	StargazersCount int    `json:"stargazers_count"`
	ForksCount      int    `json:"forks_count"`
	OpenIssuesCount int    `json:"open_issues_count"`
	UpdatedAt       string `json:"updated_at"`
	DefaultBranch   string `json:"default_branch"`
	Fork            bool   `json:"fork"`
	Archived        bool   `json:"archived"`
	Owner           struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type githubTree struct {
	Tree []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	} `json:"tree"`
	Truncated bool `json:"truncated"`
}

type githubReadme struct {
	Size int `json:"size"`
}

// RepoRef identifies one repository discovered in an owner listing.
type RepoRef struct {
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Stars       int       `json:"stars"`
	Fork        bool      `json:"fork"`
	Archived    bool      `json:"archived"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GitHubAdapter fetches repository metadata from the GitHub REST API
type GitHubAdapter struct {
	token   string
	baseURL string
	pool    *resilience.ConnectionPool
	metrics *monitoring.Metrics
}

// SetMetrics attaches the process metrics so external API calls show
// up in /metrics and the alert rules.
func (g *GitHubAdapter) SetMetrics(m *monitoring.Metrics) {
	g.metrics = m
}

func (g *GitHubAdapter) recordSuccess() {
	resilience.RecordRequest(ServiceGitHub, true)
	if g.metrics != nil {
		g.metrics.RecordExternalAPIRequest(ServiceGitHub, true)
	}
}

func (g *GitHubAdapter) recordFailure(err error) {
	resilience.RecordError(ServiceGitHub, err)
	if g.metrics != nil {
		g.metrics.RecordExternalAPIRequest(ServiceGitHub, false)
	}
}

// NewGitHubAdapter creates a new GitHub adapter with connection pooling.
// The token is optional; without it only public repositories are visible.
func NewGitHubAdapter(token string) *GitHubAdapter {
	return NewGitHubAdapterWithBaseURL(token, defaultGitHubBaseURL)
}

// NewGitHubAdapterWithBaseURL creates an adapter against a custom API
// base URL. Used by tests to point at a stub server.
func NewGitHubAdapterWithBaseURL(token, baseURL string) *GitHubAdapter {
	cb := resilience.GetCircuitBreaker(ServiceGitHub, resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 3,
	})

	pool := resilience.NewConnectionPool(10, 20, 30*time.Second, cb)

	return &GitHubAdapter{
		token:   token,
		baseURL: baseURL,
		pool:    pool,
	}
}

// FetchSnapshot assembles a RepositorySnapshot for one repository.
// The repository resource itself is required; the tree listing, README
// size, and manifest contents degrade to absent values when unavailable,
// so a reachable repository always yields a complete snapshot.
func (g *GitHubAdapter) FetchSnapshot(ctx context.Context, owner, repo string) (analysis.RepositorySnapshot, error) {
	meta, err := g.fetchRepo(ctx, owner, repo)
	if err != nil {
		g.recordFailure(err)
		return analysis.RepositorySnapshot{}, err
	}
	g.recordSuccess()

	snap := analysis.RepositorySnapshot{
		Owner:       meta.Owner.Login,
		Name:        meta.Name,
		URL:         meta.HTMLURL,
		Description: meta.Description,
		Language:    meta.Language,
		Stars:       meta.StargazersCount,
		Forks:       meta.ForksCount,
		OpenIssues:  meta.OpenIssuesCount,
		UpdatedAt:   parseGitHubTime(meta.UpdatedAt),
		FetchedAt:   time.Now().UTC(),
	}
	if snap.Owner == "" {
		snap.Owner = owner
	}

	snap.Files = g.fetchFileListing(ctx, owner, repo, meta.DefaultBranch)
	snap.ReadmeBytes = g.fetchReadmeSize(ctx, owner, repo)
	snap.Manifests = g.fetchManifests(ctx, owner, repo, snap.Files)

	return snap, nil
}

// ListOwnerRepos returns the owner's repositories, most recently
// updated first. Forked and archived repositories are included and
// left for the caller to filter.
func (g *GitHubAdapter) ListOwnerRepos(ctx context.Context, owner string) ([]RepoRef, error) {
	url := fmt.Sprintf("%s/users/%s/repos?per_page=100&sort=updated", g.baseURL, owner)

	resp, err := g.makeRequest(ctx, http.MethodGet, url, "")
	if err != nil {
		g.recordFailure(err)
		return nil, apperrors.NewNetworkError("GitHub API unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		appErr := g.statusError(resp, fmt.Sprintf("user %s", owner))
		g.recordFailure(appErr)
		return nil, appErr
	}
	g.recordSuccess()

	var repos []githubRepo
	if err := json.NewDecoder(resp.Body).Decode(&repos); err != nil {
		return nil, apperrors.NewExternalAPIError("GitHub", err)
	}

	refs := make([]RepoRef, 0, len(repos))
	for _, r := range repos {
		refOwner := r.Owner.Login
		if refOwner == "" {
			refOwner = owner
		}
		refs = append(refs, RepoRef{
			Owner:       refOwner,
			Name:        r.Name,
			Description: r.Description,
			Stars:       r.StargazersCount,
			Fork:        r.Fork,
			Archived:    r.Archived,
			UpdatedAt:   parseGitHubTime(r.UpdatedAt),
		})
	}

	return refs, nil
}

// fetchRepo fetches the repository resource, the only required call.
func (g *GitHubAdapter) fetchRepo(ctx context.Context, owner, repo string) (*githubRepo, error) {
	url := fmt.Sprintf("%s/repos/%s/%s", g.baseURL, owner, repo)

	resp, err := g.makeRequest(ctx, http.MethodGet, url, "")
	if err != nil {
		return nil, apperrors.NewNetworkError("GitHub API unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, g.statusError(resp, fmt.Sprintf("repository %s/%s", owner, repo))
	}

	var meta githubRepo
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, apperrors.NewExternalAPIError("GitHub", err)
	}

	return &meta, nil
}

// fetchFileListing retrieves the recursive tree of the default branch.
// Any failure degrades to an empty listing; an empty repository has no
// tree at all and GitHub reports 409 for it.
func (g *GitHubAdapter) fetchFileListing(ctx context.Context, owner, repo, branch string) []string {
	if branch == "" {
		return nil
	}

	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", g.baseURL, owner, repo, branch)

	resp, err := g.makeRequest(ctx, http.MethodGet, url, "")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	var tree githubTree
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		return nil
	}

	files := make([]string, 0, len(tree.Tree))
	for _, entry := range tree.Tree {
		if entry.Type == "blob" {
			files = append(files, entry.Path)
		}
	}

	return files
}

// fetchReadmeSize returns the README byte size, zero when absent.
func (g *GitHubAdapter) fetchReadmeSize(ctx context.Context, owner, repo string) int {
	url := fmt.Sprintf("%s/repos/%s/%s/readme", g.baseURL, owner, repo)

	resp, err := g.makeRequest(ctx, http.MethodGet, url, "")
	if err != nil {
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0
	}

	var readme githubReadme
	if err := json.NewDecoder(resp.Body).Decode(&readme); err != nil {
		return 0
	}

	return readme.Size
}

// fetchManifests downloads raw manifest contents for the known
// dependency manifests that appear in the file listing. Download
// failures leave the manifest out, which scores as absent.
func (g *GitHubAdapter) fetchManifests(ctx context.Context, owner, repo string, files []string) map[string]string {
	var manifests map[string]string

	for _, name := range snapshotManifests {
		if !containsPath(files, name) {
			continue
		}

		url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.baseURL, owner, repo, name)
		resp, err := g.makeRequest(ctx, http.MethodGet, url, "application/vnd.github.raw")
		if err != nil {
			continue
		}

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			continue
		}

		// Manifests are small; cap the read all the same.
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			continue
		}

		if manifests == nil {
			manifests = make(map[string]string, len(snapshotManifests))
		}
		manifests[name] = string(body)
	}

	return manifests
}

// statusError maps a non-200 GitHub response to a typed error. Not
// found, rate limited, and other API failures stay distinguishable for
// the caller.
func (g *GitHubAdapter) statusError(resp *http.Response, resource string) *apperrors.AppError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperrors.NewNotFoundError(resource, nil)
	case http.StatusForbidden, http.StatusTooManyRequests:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return apperrors.NewRateLimitError(resp.Header.Get("X-RateLimit-Reset"))
		}
		return apperrors.NewExternalAPIError("GitHub",
			fmt.Errorf("access denied for %s: status %d", resource, resp.StatusCode))
	default:
		return apperrors.NewExternalAPIError("GitHub",
			fmt.Errorf("status %d for %s: %s", resp.StatusCode, resource, string(body)))
	}
}

// makeRequest issues a request through the connection pool with retry.
func (g *GitHubAdapter) makeRequest(ctx context.Context, method, url, accept string) (*http.Response, error) {
	if accept == "" {
		accept = "application/vnd.github.v3+json"
	}

	headers := map[string]string{
		"Accept":     accept,
		"User-Agent": "RepoYield/1.0",
	}
	if g.token != "" {
		headers["Authorization"] = "Bearer " + g.token
	}

	return resilience.HTTPExecuteWithRetry(ctx, ServiceGitHub, func() (*http.Response, error) {
		return g.pool.DoRequest(ctx, method, url, headers)
	})
}

func parseGitHubTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func containsPath(files []string, name string) bool {
	for _, f := range files {
		if f == name {
			return true
		}
	}
	return false
}

// GetPoolStats returns connection pool statistics
func (g *GitHubAdapter) GetPoolStats() map[string]interface{} {
	return g.pool.GetStats()
}

// Close closes the connection pool
func (g *GitHubAdapter) Close() error {
	return g.pool.Close()
}

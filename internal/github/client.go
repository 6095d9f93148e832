// Package github is the client for the upstream developer-hosting platform.
// Every call runs under the rate-limit governor; quota headers are parsed on
// every response, including error responses, so already-in-flight calls keep
// the shared quota state current.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"githire/internal/common/config"
	cerrors "githire/internal/common/errors"
	"githire/internal/common/httpclient"
	"githire/internal/common/logger"
	"githire/internal/common/metrics"
	"githire/internal/models"
	"githire/internal/sourcing/ratelimit"
)

const (
	acceptHeader  = "application/vnd.github+json"
	searchPerPage = 100
)

type Client struct {
	http       *httpclient.Client
	baseURL    string
	graphqlURL string
	token      string
	governor   *ratelimit.Governor
	logger     logger.Logger

	searchPageLimit int
	reposPerUser    int

	calls atomic.Int64
}

func NewClient(cfg config.PlatformConfig, governor *ratelimit.Governor, log logger.Logger) *Client {
	return &Client{
		http:            httpclient.NewClient(time.Duration(cfg.Timeout) * time.Millisecond),
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		graphqlURL:      cfg.GraphQLURL,
		token:           cfg.Token,
		governor:        governor,
		logger:          log.WithFields(map[string]interface{}{"component": "platform-client"}),
		searchPageLimit: cfg.SearchPageLimit,
		reposPerUser:    cfg.ReposPerUser,
	}
}

// Calls reports the total HTTP calls issued since construction. The
// coordinator snapshots this around a run for per-run accounting.
func (c *Client) Calls() int64 {
	return c.calls.Load()
}

// SearchUsers runs the upstream text search and returns candidate logins,
// paginated up to the configured page limit.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]string, error) {
	var logins []string
	for page := 1; page <= c.searchPageLimit; page++ {
		q := url.Values{}
		q.Set("q", query)
		q.Set("per_page", strconv.Itoa(searchPerPage))
		q.Set("page", strconv.Itoa(page))

		var resp searchUsersResponse
		err := c.getJSON(ctx, "search", c.baseURL+"/search/users?"+q.Encode(), &resp)
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			logins = append(logins, item.Login)
		}
		if len(resp.Items) < searchPerPage {
			break
		}
	}
	return logins, nil
}

// FetchUserBatch fetches one chunk of profiles through a single aliased
// GraphQL query. Partial failures inside the chunk come back per-login in
// failed; a call-level failure is returned as err with no partial results.
func (c *Client) FetchUserBatch(ctx context.Context, logins []string) (map[string]models.RawProfile, map[string]error, error) {
	var sb strings.Builder
	sb.WriteString("query {")
	for i, login := range logins {
		fmt.Fprintf(&sb, ` u%d: user(login: %q) { login name bio location`+
			` followers { totalCount } repositories(privacy: PUBLIC) { totalCount } }`, i, login)
	}
	sb.WriteString(" }")

	body, err := json.Marshal(graphQLRequest{Query: sb.String()})
	if err != nil {
		return nil, nil, err
	}

	var resp graphQLResponse
	if err := c.postJSON(ctx, "graphql", c.graphqlURL, body, &resp); err != nil {
		return nil, nil, err
	}

	profiles := make(map[string]models.RawProfile, len(logins))
	failed := make(map[string]error)

	for i, login := range logins {
		alias := fmt.Sprintf("u%d", i)
		user := resp.Data[alias]
		if user == nil {
			failed[login] = cerrors.NewPermanentUpstreamError("users/"+login, http.StatusNotFound)
			continue
		}
		profiles[login] = models.RawProfile{
			Login:       user.Login,
			Name:        user.Name,
			Bio:         user.Bio,
			Location:    user.Location,
			Followers:   user.Followers.TotalCount,
			PublicRepos: user.Repositories.TotalCount,
		}
	}

	// GraphQL reports entity-level problems in errors with the alias path;
	// anything not already marked missing gets attributed from there.
	for _, gqlErr := range resp.Errors {
		if len(gqlErr.Path) == 0 {
			continue
		}
		alias, ok := gqlErr.Path[0].(string)
		if !ok || !strings.HasPrefix(alias, "u") {
			continue
		}
		idx, err := strconv.Atoi(alias[1:])
		if err != nil || idx < 0 || idx >= len(logins) {
			continue
		}
		login := logins[idx]
		if _, already := failed[login]; !already {
			delete(profiles, login)
			failed[login] = cerrors.NewPermanentUpstreamError("users/"+login, http.StatusNotFound)
		}
	}

	return profiles, failed, nil
}

// ListRepositories returns the candidate's most recently updated public
// repositories, capped by configuration.
func (c *Client) ListRepositories(ctx context.Context, login string) ([]models.Repository, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.reposPerUser))
	q.Set("sort", "updated")

	var repos []models.Repository
	err := c.getJSON(ctx, "repos", fmt.Sprintf("%s/users/%s/repos?%s", c.baseURL, url.PathEscape(login), q.Encode()), &repos)
	if err != nil {
		return nil, err
	}
	return repos, nil
}

// ListStarred returns repositories the candidate has starred.
func (c *Client) ListStarred(ctx context.Context, login string) ([]models.Repository, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(c.reposPerUser))

	var repos []models.Repository
	err := c.getJSON(ctx, "starred", fmt.Sprintf("%s/users/%s/starred?%s", c.baseURL, url.PathEscape(login), q.Encode()), &repos)
	if err != nil {
		return nil, err
	}
	return repos, nil
}

// GetFileContents fetches one file from a repository, base64-decoded.
// Missing files surface as PERMANENT_UPSTREAM.
func (c *Client) GetFileContents(ctx context.Context, repoFullName, path string) (string, error) {
	var resp contentsResponse
	err := c.getJSON(ctx, "contents", fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, repoFullName, path), &resp)
	if err != nil {
		return "", err
	}
	if resp.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
		if err != nil {
			return "", fmt.Errorf("decode contents of %s/%s: %w", repoFullName, path, err)
		}
		return string(decoded), nil
	}
	return resp.Content, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, out interface{}) error {
	return c.execute(ctx, endpoint, http.MethodGet, rawURL, nil, out)
}

func (c *Client) postJSON(ctx context.Context, endpoint, rawURL string, body []byte, out interface{}) error {
	return c.execute(ctx, endpoint, http.MethodPost, rawURL, body, out)
}

// execute issues one governed HTTP call. The governor handles pausing and
// retry; this classifies statuses into the error taxonomy and reports quota
// headers back regardless of outcome.
func (c *Client) execute(ctx context.Context, endpoint, method, rawURL string, body []byte, out interface{}) error {
	return c.governor.Execute(ctx, endpoint, func(ctx context.Context) (ratelimit.Quota, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequest(method, rawURL, reader)
		if err != nil {
			return ratelimit.Quota{}, err
		}
		req.Header.Set("Accept", acceptHeader)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		c.calls.Add(1)

		resp, err := c.http.DoWithContext(ctx, req)
		if err != nil {
			metrics.APICallsTotal.WithLabelValues(endpoint, "network_error").Inc()
			return ratelimit.Quota{}, cerrors.NewTransientUpstreamError(http.StatusServiceUnavailable, err.Error())
		}
		defer resp.Body.Close()

		quota := parseQuota(resp)

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			metrics.APICallsTotal.WithLabelValues(endpoint, "ok").Inc()
			if out != nil {
				if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
					return quota, fmt.Errorf("decode %s response: %w", endpoint, err)
				}
			}
			return quota, nil

		case resp.StatusCode == http.StatusForbidden && quota.Known && quota.Remaining == 0:
			metrics.APICallsTotal.WithLabelValues(endpoint, "rate_limited").Inc()
			return quota, cerrors.NewRateLimitExceededError(quota.ResetAt)

		case cerrors.IsTransientStatus(resp.StatusCode):
			metrics.APICallsTotal.WithLabelValues(endpoint, "transient").Inc()
			return quota, cerrors.NewTransientUpstreamError(resp.StatusCode, rawURL)

		default:
			metrics.APICallsTotal.WithLabelValues(endpoint, "permanent").Inc()
			return quota, cerrors.NewPermanentUpstreamError(rawURL, resp.StatusCode)
		}
	})
}

func parseQuota(resp *http.Response) ratelimit.Quota {
	remainingStr := resp.Header.Get("X-RateLimit-Remaining")
	resetStr := resp.Header.Get("X-RateLimit-Reset")
	if remainingStr == "" || resetStr == "" {
		return ratelimit.Quota{}
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return ratelimit.Quota{}
	}
	resetUnix, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return ratelimit.Quota{}
	}
	return ratelimit.Quota{
		Remaining: remaining,
		ResetAt:   time.Unix(resetUnix, 0),
		Known:     true,
	}
}

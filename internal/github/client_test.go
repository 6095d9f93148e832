// internal/github/client_test.go
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"githire/internal/common/config"
	cerrors "githire/internal/common/errors"
	"githire/internal/common/logger"
	"githire/internal/sourcing/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// immediateClock never actually sleeps so backoff paths run instantly.
type immediateClock struct{ now time.Time }

func (c *immediateClock) Now() time.Time { return c.now }

func (c *immediateClock) Sleep(ctx context.Context, d time.Duration) error {
	c.now = c.now.Add(d)
	return ctx.Err()
}

func quotaHeaders(w http.ResponseWriter, remaining int, resetAt time.Time) {
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	governor := ratelimit.New(config.RetryConfig{
		MaxAttempts:        4,
		BackoffBaseSeconds: 2,
		LowWaterMark:       0,
	}, &immediateClock{now: time.Now()}, logger.NewNoOpLogger())

	client := NewClient(config.PlatformConfig{
		BaseURL:         srv.URL,
		GraphQLURL:      srv.URL + "/graphql",
		Token:           "test-token",
		Timeout:         2000,
		SearchPageLimit: 3,
		ReposPerUser:    30,
	}, governor, logger.NewNoOpLogger())
	return client, srv
}

func TestSearchUsers_SinglePage(t *testing.T) {
	var gotAuth, gotAccept string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/users", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		quotaHeaders(w, 4999, time.Now().Add(time.Hour))
		_ = json.NewEncoder(w).Encode(searchUsersResponse{
			TotalCount: 2,
			Items: []struct {
				Login string `json:"login"`
			}{{Login: "alice"}, {Login: "bob"}},
		})
	})
	client, _ := newTestClient(t, handler)

	logins, err := client.SearchUsers(context.Background(), "pandas location:\"Chennai\"")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, logins)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, acceptHeader, gotAccept)
	assert.Equal(t, int64(1), client.Calls())
}

func TestFetchUserBatch_PartialFailureAttribution(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/graphql", r.URL.Path)
		quotaHeaders(w, 4998, time.Now().Add(time.Hour))
		fmt.Fprint(w, `{
			"data": {
				"u0": {"login": "alice", "bio": "data engineer", "followers": {"totalCount": 10}, "repositories": {"totalCount": 5}},
				"u1": null
			},
			"errors": [{"type": "NOT_FOUND", "message": "no user", "path": ["u1"]}]
		}`)
	})
	client, _ := newTestClient(t, handler)

	profiles, failed, err := client.FetchUserBatch(context.Background(), []string{"alice", "ghost"})
	require.NoError(t, err)

	require.Contains(t, profiles, "alice")
	assert.Equal(t, "data engineer", profiles["alice"].Bio)
	assert.Equal(t, 10, profiles["alice"].Followers)

	require.Contains(t, failed, "ghost")
	assert.True(t, cerrors.HasCode(failed["ghost"], cerrors.ErrCodePermanentUpstream))
}

func TestGetFileContents_Base64Decoded(t *testing.T) {
	body := "pandas>=1.5\nnumpy\n"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/alice/analytics/contents/requirements.txt", r.URL.Path)
		quotaHeaders(w, 4997, time.Now().Add(time.Hour))
		_ = json.NewEncoder(w).Encode(contentsResponse{
			Content:  base64.StdEncoding.EncodeToString([]byte(body)),
			Encoding: "base64",
		})
	})
	client, _ := newTestClient(t, handler)

	content, err := client.GetFileContents(context.Background(), "alice/analytics", "requirements.txt")
	require.NoError(t, err)
	assert.Equal(t, body, content)
}

func TestGetFileContents_MissingFileIsPermanent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		quotaHeaders(w, 4996, time.Now().Add(time.Hour))
		w.WriteHeader(http.StatusNotFound)
	})
	client, _ := newTestClient(t, handler)

	_, err := client.GetFileContents(context.Background(), "alice/analytics", "requirements.txt")
	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodePermanentUpstream))
}

func TestExecute_TransientErrorRetriedThenSucceeds(t *testing.T) {
	attempts := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		quotaHeaders(w, 4995, time.Now().Add(time.Hour))
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(searchUsersResponse{})
	})
	client, _ := newTestClient(t, handler)

	_, err := client.SearchUsers(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, int64(3), client.Calls())
}

func TestExecute_ExhaustedQuotaSurfacesRateLimit(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		quotaHeaders(w, 0, time.Now().Add(time.Hour))
		w.WriteHeader(http.StatusForbidden)
	})
	client, _ := newTestClient(t, handler)

	_, err := client.SearchUsers(context.Background(), "go")
	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeRateLimitExceeded))
}

func TestParseQuota(t *testing.T) {
	resetAt := time.Now().Add(30 * time.Minute).Truncate(time.Second)

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("X-RateLimit-Remaining", "42")
	resp.Header.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

	quota := parseQuota(resp)
	assert.True(t, quota.Known)
	assert.Equal(t, 42, quota.Remaining)
	assert.True(t, quota.ResetAt.Equal(resetAt))

	// Missing headers leave the quota unknown.
	assert.False(t, parseQuota(&http.Response{Header: http.Header{}}).Known)
}

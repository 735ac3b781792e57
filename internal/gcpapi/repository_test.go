package gcpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRepositoryValidatesURL(t *testing.T) {
	_, err := NewRepository("https://example.com/v1")
	require.NoError(t, err)

	_, err = NewRepository("not-a-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absolute")

	_, err = NewRepository("://bad")
	require.Error(t, err)
}

func TestListFlattensPages(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/projects", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("pageSize"))

		switch r.URL.Query().Get("pageToken") {
		case "":
			fmt.Fprint(w, `{"projects":[{"id":"p1"},{"id":"p2"}],"nextPageToken":"page-2"}`)
		case "page-2":
			fmt.Fprint(w, `{"projects":[{"id":"p3"}]}`)
		default:
			t.Errorf("unexpected page token %q", r.URL.Query().Get("pageToken"))
		}
	}))
	defer srv.Close()

	repo, err := NewRepository(srv.URL, WithPageSize(2))
	require.NoError(t, err)

	items, err := repo.List(context.Background(), "/v1/projects", url.Values{}, "projects")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.EqualValues(t, 2, calls.Load())

	var first struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(items[0], &first))
	assert.Equal(t, "p1", first.ID)
}

func TestListMissingItemsField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"somethingElse":[]}`)
	}))
	defer srv.Close()

	repo, err := NewRepository(srv.URL)
	require.NoError(t, err)

	items, err := repo.List(context.Background(), "/v1/projects", url.Values{}, "projects")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestListWrapsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	repo, err := NewRepository(srv.URL)
	require.NoError(t, err)

	_, err = repo.List(context.Background(), "/v1/projects", url.Values{}, "projects")
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "/v1/projects", execErr.Resource)
	assert.Contains(t, execErr.Error(), "429")
}

func TestGetReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/projects/demo", r.URL.Path)
		fmt.Fprint(w, `{"id":"demo","lifecycleState":"ACTIVE"}`)
	}))
	defer srv.Close()

	repo, err := NewRepository(srv.URL)
	require.NoError(t, err)

	body, err := repo.Get(context.Background(), "/v1/projects/demo", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"demo","lifecycleState":"ACTIVE"}`, string(body))
}

func TestQuotaThrottlesCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	// 2 calls of burst, then one call per 100ms.
	repo, err := NewRepository(srv.URL, WithQuota(2, 200*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := repo.Get(context.Background(), "/v1/ping", nil)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestQuotaRespectsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	repo, err := NewRepository(srv.URL, WithQuota(1, time.Hour))
	require.NoError(t, err)

	// Exhaust the burst.
	_, err = repo.Get(context.Background(), "/v1/ping", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = repo.Get(ctx, "/v1/ping", nil)
	require.Error(t, err)
}

func TestCredentialsFileSetsBearerToken(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	credsPath := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(credsPath, []byte("secret-token\n"), 0o600))

	repo, err := NewRepository(srv.URL, WithCredentialsFile(credsPath))
	require.NoError(t, err)

	_, err = repo.Get(context.Background(), "/v1/ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth.Load())
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbpicker/internal/model"
	"kbpicker/internal/retry"
)

func newTestClient(srv *httptest.Server) *Client {
	return New(Config{
		BaseURL:     srv.URL,
		Timeout:     5 * time.Second,
		RetryConfig: retry.Config{MaxAttempts: 1},
	})
}

func TestListResources(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/connections/resources", r.URL.Path)
		assert.Equal(t, "d1", r.URL.Query().Get("resource_id"))
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"data": []model.Resource{
				{ID: "f2", Path: "docs/report.pdf", Kind: model.KindFile, Size: 42},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.SetToken("tok-1")

	resources, err := c.ListResources(context.Background(), "d1")
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, "f2", resources[0].ID)
	assert.EqualValues(t, 42, resources[0].Size)
}

func TestListResources_RootOmitsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("resource_id"))
		json.NewEncoder(w).Encode(map[string]any{"data": []model.Resource{}})
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListResources(context.Background(), "")
	require.NoError(t, err)
}

func TestCreateKnowledgeBase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/knowledge-bases", r.URL.Path)

		var req createKBRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "My KB", req.Name)
		assert.Equal(t, []string{"f1", "d1"}, req.ResourceIDs)

		json.NewEncoder(w).Encode(model.KnowledgeBase{ID: "kb-1", Name: req.Name})
	}))
	defer srv.Close()

	kb, err := newTestClient(srv).CreateKnowledgeBase(context.Background(), "My KB", "", []string{"f1", "d1"})
	require.NoError(t, err)
	assert.Equal(t, "kb-1", kb.ID)
}

func TestSyncKnowledgeBase_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/knowledge-bases/kb-1/sync", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	err := newTestClient(srv).SyncKnowledgeBase(context.Background(), "kb-1")
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Code)
}

func TestListKBResources_ToleratesMissingScope(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))

		resources, err := newTestClient(srv).ListKBResources(context.Background(), "kb-1", "docs")
		assert.NoError(t, err, "status %d", code)
		assert.Nil(t, resources)
		srv.Close()
	}
}

func TestListKBResources_OtherErrorsSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).ListKBResources(context.Background(), "kb-1", "docs")
	require.Error(t, err)
}

func TestDeleteKBResource_NotFoundIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "docs/report.pdf", r.URL.Query().Get("resource_path"))
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient(srv).DeleteKBResource(context.Background(), "kb-1", "docs/report.pdf")
	assert.NoError(t, err)
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []model.Resource{}})
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL: srv.URL,
		RetryConfig: retry.Config{
			MaxAttempts: 3,
			InitialWait: time.Millisecond,
			MaxWait:     5 * time.Millisecond,
			Multiplier:  2,
		},
	})

	_, err := c.ListResources(context.Background(), "")
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt64(&hits))
}

func TestDo_DoesNotRetryClientErrors(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Config{
		BaseURL: srv.URL,
		RetryConfig: retry.Config{
			MaxAttempts: 3,
			InitialWait: time.Millisecond,
			MaxWait:     5 * time.Millisecond,
			Multiplier:  2,
		},
	})

	_, err := c.ListResources(context.Background(), "")
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits))
}

func TestLogin_StoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a@b.com", req.Email)
		json.NewEncoder(w).Encode(loginResponse{AccessToken: "tok-xyz"})
	}))
	defer srv.Close()

	c := newTestClient(srv)
	token, err := c.Login(context.Background(), "a@b.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-xyz", token)
	assert.Equal(t, "tok-xyz", c.Token())
}

func TestLogin_EmptyTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(loginResponse{})
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Login(context.Background(), "a@b.com", "secret")
	assert.Error(t, err)
}

func TestAuthStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(authStatusResponse{Authenticated: true})
	}))
	defer srv.Close()

	ok, err := newTestClient(srv).AuthStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(&StatusError{Code: http.StatusNotFound}))
	assert.False(t, IsNotFound(&StatusError{Code: http.StatusForbidden}))
	assert.False(t, IsNotFound(nil))
}

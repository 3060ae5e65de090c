package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresBaseURLAndOrg(t *testing.T) {
	_, err := NewClient("", "org-1")
	assert.Error(t, err)

	_, err = NewClient("http://localhost:8080", "")
	assert.Error(t, err)

	_, err = NewClient("ftp://localhost", "org-1")
	assert.Error(t, err)

	c, err := NewClient("http://localhost:8080/", "org-1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", c.baseURL)
}

func TestClient_SendsTenantHeaders(t *testing.T) {
	var gotOrg, gotUser, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg = r.Header.Get("X-Org-ID")
		gotUser = r.Header.Get("X-User-ID")
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"id":"abc","status":"pending"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "org-1", WithUserID("user-9"))
	require.NoError(t, err)

	_, err = c.Deliveries().Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "org-1", gotOrg)
	assert.Equal(t, "user-9", gotUser)
	assert.Contains(t, gotAgent, "fiscore-go-sdk/")
}

func TestClient_DecodesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"error":{"code":"DLV_002","message":"only pending deliveries can be cancelled"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "org-1")
	require.NoError(t, err)

	_, err = c.Deliveries().Cancel(context.Background(), "abc")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, "DLV_002", apiErr.Code)
	assert.True(t, apiErr.IsConflict())
	assert.Contains(t, apiErr.Error(), "only pending deliveries")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"id":"abc"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "org-1",
		WithRetryMax(3),
		WithRetryWait(time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)

	item, err := c.Deliveries().Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", item.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"success":false,"error":{"code":"DLV_001","message":"delivery queue item not found"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "org-1", WithRetryWait(time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Deliveries().Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	apiErr := err.(*APIError)
	assert.True(t, apiErr.IsNotFound())
}

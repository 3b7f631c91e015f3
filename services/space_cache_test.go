package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveSpaceHost(t *testing.T) {
	assert.Equal(t, "https://yisol-idm-vton.hf.space", DeriveSpaceHost("yisol/IDM-VTON"))
	assert.Equal(t, "https://kw-ai-kolors-virtual-try-on.hf.space", DeriveSpaceHost("KW-AI/Kolors-Virtual-Try-On"))
	assert.Equal(t, "https://owner-my-space-v2.hf.space", DeriveSpaceHost("owner/my_space.v2"))
}

func TestSpaceHostCacheLookup(t *testing.T) {
	var authorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		if r.URL.Path != "/api/spaces/yisol/IDM-VTON/host" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"subdomain":"yisol-idm-vton","host":"https://yisol-idm-vton.hf.space/"}`))
	}))
	defer server.Close()

	hosts, err := NewSpaceHostCache(server.Client(), server.URL, "hf_secret")
	require.NoError(t, err)

	host, err := hosts.GetHost(context.Background(), "yisol/IDM-VTON")
	require.NoError(t, err)
	assert.Equal(t, "https://yisol-idm-vton.hf.space", host)
	assert.Equal(t, "Bearer hf_secret", authorization)
}

func TestSpaceHostCacheFullURL(t *testing.T) {
	hosts, err := NewSpaceHostCache(http.DefaultClient, "http://127.0.0.1:1", "hf_secret")
	require.NoError(t, err)

	host, err := hosts.GetHost(context.Background(), "http://localhost:7860/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:7860", host)
}

func TestSpaceHostCacheFallsBackOnLookupFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	hosts, err := NewSpaceHostCache(server.Client(), server.URL, "hf_secret")
	require.NoError(t, err)

	host, err := hosts.GetHost(context.Background(), "yisol/IDM-VTON")
	require.NoError(t, err)
	assert.Equal(t, "https://yisol-idm-vton.hf.space", host)
}

func TestSpaceHostCacheAuthRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	hosts, err := NewSpaceHostCache(server.Client(), server.URL, "hf_wrong")
	require.NoError(t, err)

	_, err = hosts.GetHost(context.Background(), "yisol/IDM-VTON")
	var gatewayErr *GatewayError
	require.True(t, errors.As(err, &gatewayErr))
	assert.Equal(t, AuthRejected, gatewayErr.Kind)
}

func TestSpaceHostCacheCancelled(t *testing.T) {
	hosts, err := NewSpaceHostCache(http.DefaultClient, "http://127.0.0.1:1", "hf_secret")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = hosts.GetHost(ctx, "yisol/IDM-VTON")
	var gatewayErr *GatewayError
	require.True(t, errors.As(err, &gatewayErr))
	assert.Equal(t, ConnectionFailed, gatewayErr.Kind)
	assert.ErrorIs(t, err, context.Canceled)
}

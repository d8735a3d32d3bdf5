package matching

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestMatchProviders(t *testing.T) {
	var got Criteria
	hc := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/match-providers", req.URL.Path)
		require.NoError(t, json.NewDecoder(req.Body).Decode(&got))
		body := `{"success":true,"providers":[{"providerId":"P1","score":92,"rating":4.8,"distance":2.1,"hourlyRate":18},{"providerId":"P2","score":80}]}`
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}, nil
	})}
	c := NewClientWithHTTP("http://engine/", hc)

	out, err := c.MatchProviders(context.Background(), Criteria{
		ServiceType:   "Garde d'enfants",
		Location:      "Paris",
		Urgency:       "normal",
		MinRating:     3,
		MaxDistanceKm: 50,
		RequestedDate: time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "P1", out[0].ProviderID)
	assert.Equal(t, 92.0, out[0].Score)
	assert.Equal(t, "Paris", got.Location)
	assert.Equal(t, 50.0, got.MaxDistanceKm)
}

func TestMatchProvidersEngineFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"index rebuilding"}`))
	}))
	defer srv.Close()

	_, err := NewClientWithHTTP(srv.URL, srv.Client()).MatchProviders(context.Background(), Criteria{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index rebuilding")
}

func TestMatchProvidersHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClientWithHTTP(srv.URL, srv.Client()).MatchProviders(context.Background(), Criteria{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestStaticKeyIsSentAsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"providers":[]}`))
	}))
	defer srv.Close()

	c := NewClient(context.Background(), Options{BaseURL: srv.URL, APIKey: "secret"})
	out, err := c.MatchProviders(context.Background(), Criteria{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestClientCredentialsFetchesToken(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"cc-token","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer cc-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"providers":[{"providerId":"P9","score":70}]}`))
	}))
	defer engine.Close()

	c := NewClient(context.Background(), Options{
		BaseURL:      engine.URL,
		TokenURL:     tokenSrv.URL,
		ClientID:     "booking",
		ClientSecret: "s3cr3t",
	})
	out, err := c.MatchProviders(context.Background(), Criteria{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "P9", out[0].ProviderID)
}

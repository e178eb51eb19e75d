package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PharmacyScanner/internal/models"
)

func samplePayload() models.AvailabilityPayload {
	p := 3.99
	return models.NewAvailabilityPayload("drmax", "ibalgin", models.StatusOK, &p,
		map[string]any{"name": "Ibalgin"}, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
}

func TestDeliver_PostsJSON(t *testing.T) {
	var got models.AvailabilityPayload
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/internal/availability", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		user, pass, _ = r.BasicAuth()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, nil).WithBasicAuth("scanner", "secret")
	require.NoError(t, c.Deliver(context.Background(), samplePayload()))

	assert.Equal(t, "drmax", got.PharmacyID)
	assert.Equal(t, "2026-03-01T08:00:00Z", got.Timestamp)
	require.NotNil(t, got.Price)
	assert.InDelta(t, 3.99, *got.Price, 1e-9)
	assert.Equal(t, "scanner", user)
	assert.Equal(t, "secret", pass)
}

func TestDeliver_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, time.Second, nil).Deliver(context.Background(), samplePayload())
	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, http.StatusInternalServerError, de.StatusCode)
	assert.Equal(t, "boom", de.Body)
}

func TestDeliver_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewClient(url, time.Second, nil).Deliver(context.Background(), samplePayload())
	var de *DeliveryError
	require.True(t, errors.As(err, &de))
	assert.Zero(t, de.StatusCode)
}

func TestDeliver_NoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	assert.Error(t, NewClient(srv.URL, time.Second, nil).Deliver(context.Background(), samplePayload()))
	assert.Equal(t, 1, calls)
}

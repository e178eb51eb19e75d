package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PharmacyScanner/internal/database"
	"PharmacyScanner/internal/delivery"
	"PharmacyScanner/internal/models"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	repo, err := database.Open(filepath.Join(t.TempDir(), "sink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	srv := httptest.NewServer(New(repo, nil))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDeliveryRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	client := delivery.NewClient(srv.URL, time.Second, nil)

	price := 3.99
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, client.Deliver(context.Background(),
		models.NewAvailabilityPayload("drmax", "ibalgin", models.StatusOK, &price, map[string]any{"name": "Ibalgin"}, at)))
	require.NoError(t, client.Deliver(context.Background(),
		models.NewAvailabilityPayload("benu", "ibalgin", models.StatusNotFound, nil, nil, at)))

	resp, err := http.Get(srv.URL + "/internal/availability?pharmacyId=drmax&product=ibalgin&limit=10")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "drmax", body.Data[0].PharmacyID)
	assert.Equal(t, models.StatusOK, body.Data[0].Status)
	assert.Equal(t, 1, body.Pagination.Total)
	assert.Equal(t, 1, body.Pagination.TotalPages)
}

func TestCreate_Rejects(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing pharmacy", `{"product":"x","status":"ok","timestamp":"2026-03-01T08:00:00Z"}`},
		{"bad status", `{"pharmacyId":"a","product":"x","status":"maybe","timestamp":"2026-03-01T08:00:00Z"}`},
		{"bad timestamp", `{"pharmacyId":"a","product":"x","status":"ok","timestamp":"yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/internal/availability", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestList_Empty(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/internal/availability")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body ListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotNil(t, body.Data)
	assert.Empty(t, body.Data)
}

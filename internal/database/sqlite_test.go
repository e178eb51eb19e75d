package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PharmacyScanner/internal/models"
)

func openTest(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "sink.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSaveAndList(t *testing.T) {
	repo := openTest(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	price := 3.99

	_, err := repo.SaveObservation(ctx, models.NewAvailabilityPayload("drmax", "ibalgin", models.StatusOK, &price, map[string]any{"name": "Ibalgin"}, at))
	require.NoError(t, err)
	_, err = repo.SaveObservation(ctx, models.NewAvailabilityPayload("benu", "ibalgin", models.StatusNotFound, nil, nil, at))
	require.NoError(t, err)
	id, err := repo.SaveObservation(ctx, models.NewAvailabilityPayload("drmax", "ibalgin", models.StatusError, nil, nil, at))
	require.NoError(t, err)

	all, err := repo.ListObservations(ctx, Filters{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, id, all[0].ID, "newest first")

	drmax, err := repo.ListObservations(ctx, Filters{PharmacyID: "drmax", Status: models.StatusOK})
	require.NoError(t, err)
	require.Len(t, drmax, 1)
	require.NotNil(t, drmax[0].Price)
	assert.InDelta(t, 3.99, *drmax[0].Price, 1e-9)
	assert.Equal(t, "Ibalgin", drmax[0].Details["name"])
	assert.Equal(t, "2026-03-01T08:00:00Z", drmax[0].Timestamp)

	benu, err := repo.ListObservations(ctx, Filters{PharmacyID: "benu"})
	require.NoError(t, err)
	require.Len(t, benu, 1)
	assert.Nil(t, benu[0].Price)
	assert.Nil(t, benu[0].Details)

	n, err := repo.CountObservations(ctx, Filters{Product: "ibalgin"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	page, err := repo.ListObservations(ctx, Filters{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "benu", page[0].PharmacyID)
}

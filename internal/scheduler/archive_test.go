package scheduler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farewatch/internal/types"
)

type fakeArchiveStore struct {
	alerts     []types.Alert
	listErr    error
	deleteErr  error
	deletedIDs []string
}

func (f *fakeArchiveStore) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]types.Alert, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []types.Alert
	for _, al := range f.alerts {
		if al.CreatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, al)
		}
	}
	return out, nil
}

func (f *fakeArchiveStore) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	f.deletedIDs = append(f.deletedIDs, ids...)
	return len(ids), nil
}

var archiveNow = time.Date(2025, 11, 1, 3, 0, 0, 0, time.UTC)

func oldAlert(id string, age time.Duration) types.Alert {
	return types.Alert{
		ID:          id,
		WatchID:     "wt_1",
		Route:       "JFK-LAX",
		NewPriceUsd: 450,
		Sent:        true,
		CreatedAt:   archiveNow.Add(-age),
	}
}

func TestArchiverMovesExpiredRows(t *testing.T) {
	dir := t.TempDir()
	store := &fakeArchiveStore{alerts: []types.Alert{
		oldAlert("al_1", 100*24*time.Hour),
		oldAlert("al_2", 95*24*time.Hour),
		oldAlert("al_recent", 24*time.Hour),
	}}

	a := NewAlertArchiver(store, dir, 90*24*time.Hour, nil).
		WithNow(func() time.Time { return archiveNow })

	moved, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
	assert.Equal(t, []string{"al_1", "al_2"}, store.deletedIDs)

	// Exactly one batch file, named for the pass timestamp, no leftover temp.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alerts-20251101T030000Z.jsonl.gz", entries[0].Name())

	ids := readArchivedIDs(t, filepath.Join(dir, entries[0].Name()))
	assert.Equal(t, []string{"al_1", "al_2"}, ids)
}

func TestArchiverEmptyPass(t *testing.T) {
	dir := t.TempDir()
	store := &fakeArchiveStore{alerts: []types.Alert{oldAlert("al_recent", time.Hour)}}

	a := NewAlertArchiver(store, dir, 90*24*time.Hour, nil).
		WithNow(func() time.Time { return archiveNow })

	moved, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, moved)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "an empty pass must not create files")
}

func TestArchiverListFailure(t *testing.T) {
	store := &fakeArchiveStore{listErr: errors.New("connection refused")}
	a := NewAlertArchiver(store, t.TempDir(), 90*24*time.Hour, nil)

	_, err := a.Run(context.Background())
	require.Error(t, err)
}

func TestArchiverKeepsFileWhenDeleteFails(t *testing.T) {
	dir := t.TempDir()
	store := &fakeArchiveStore{
		alerts:    []types.Alert{oldAlert("al_1", 100 * 24 * time.Hour)},
		deleteErr: errors.New("deadlock detected"),
	}

	a := NewAlertArchiver(store, dir, 90*24*time.Hour, nil).
		WithNow(func() time.Time { return archiveNow })

	_, err := a.Run(context.Background())
	require.Error(t, err)

	// The batch file survives so the rows exist in at least one place.
	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Len(t, entries, 1)
}

func readArchivedIDs(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	var ids []string
	scanner := bufio.NewScanner(zr)
	for scanner.Scan() {
		var al types.Alert
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &al))
		ids = append(ids, al.ID)
	}
	require.NoError(t, scanner.Err())
	return ids
}

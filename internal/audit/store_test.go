package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordFillsDefaults(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	before := time.Now().UTC()
	e, err := s.Record(ctx, Entry{Operation: "eval", Target: "PAGE1", Status: StatusSuccess, DurationMs: 12})
	require.NoError(t, err)

	_, err = uuid.Parse(e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, e.RunID)
	assert.WithinDuration(t, before, e.CreatedAt, time.Minute)

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e.ID, got[0].ID)
	assert.Equal(t, StatusSuccess, got[0].Status)
	assert.Equal(t, int64(12), got[0].DurationMs)
	assert.Empty(t, got[0].Detail)
	assert.WithinDuration(t, e.CreatedAt, got[0].CreatedAt, time.Second)
}

func TestRecentNewestFirstAndLimited(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for _, op := range []string{"eval", "network", "trace", "perf"} {
		_, err := s.Record(ctx, Entry{Operation: op, Target: "PAGE1", Status: StatusSuccess})
		require.NoError(t, err)
	}

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "perf", got[0].Operation)
	assert.Equal(t, "trace", got[1].Operation)
}

func TestRunGroupsSteps(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	runID := uuid.NewString()

	_, err := s.Record(ctx, Entry{RunID: runID, Operation: "click_by_text", Target: "PAGE1", Status: StatusFailure, Detail: "not found"})
	require.NoError(t, err)
	_, err = s.Record(ctx, Entry{Operation: "eval", Target: "PAGE1", Status: StatusBlocked})
	require.NoError(t, err)
	_, err = s.Record(ctx, Entry{RunID: runID, Operation: "get_title", Target: "PAGE1", Status: StatusSuccess})
	require.NoError(t, err)

	got, err := s.Run(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "click_by_text", got[0].Operation)
	assert.Equal(t, "not found", got[0].Detail)
	assert.Equal(t, "get_title", got[1].Operation)
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Record(context.Background(), Entry{Operation: "eval", Target: "PAGE1", Status: StatusSuccess})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, path, s.Path())
}

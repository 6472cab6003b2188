package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordCountsHits(t *testing.T) {
	s := openMemory(t)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	existed, err := s.Record(Entry{Key: "sqlite:3.45.0:00000000000000aa", Query: "All<Person>()", SQL: "SELECT 1"})
	require.NoError(t, err)
	assert.False(t, existed)

	clock = clock.Add(time.Hour)
	existed, err = s.Record(Entry{Key: "sqlite:3.45.0:00000000000000aa", Query: "All<Person>()", SQL: "SELECT 1"})
	require.NoError(t, err)
	assert.True(t, existed)

	e, err := s.Get("sqlite:3.45.0:00000000000000aa")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(2), e.Hits)
	assert.True(t, e.FirstSeen.Before(e.LastSeen))

	missing, err := s.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListStatsAndClear(t *testing.T) {
	s := openMemory(t)
	for _, k := range []string{"a", "b", "b", "c", "b", "c"} {
		_, err := s.Record(Entry{Key: k, SQL: "SELECT " + k})
		require.NoError(t, err)
	}

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{list[0].Key, list[1].Key, list[2].Key})

	st, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 3, st.Entries)
	assert.Equal(t, int64(6), st.Hits)

	require.NoError(t, s.Clear())
	st, err = s.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.Entries)
}

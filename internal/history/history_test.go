package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hara602/regmon/pkg/event"
)

const fixture = `{
  "metadata": {
    "last_run_time": "2025-07-21 09:00:00",
    "standards_checked": 2,
    "status": "success"
  },
  "standards": {
    "USA_FCC": [
      {
        "id": "FCC-15",
        "name": "FCC Part 15",
        "type": "FCC_CFR",
        "title": 47,
        "url": "https://www.ecfr.gov/current/title-47",
        "current_version": "2025-06-10",
        "last_checked": "2025-07-21 09:00:00"
      }
    ],
    "Canada_ISED": [
      {
        "id": "RSS-247",
        "name": "RSS-247",
        "type": "ISED",
        "source_url": "https://ised-isde.canada.ca/site/spectrum/rss-247",
        "rss_id": "RSS-247",
        "current_version": null,
        "last_checked": null
      }
    ],
    "EU_ETSI": []
  },
  "update_history": []
}`

func writeFixture(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))
	return NewStore(path, nil)
}

func TestLoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "absent.json"), nil)
	snap, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Standards)
	assert.Empty(t, snap.UpdateHistory)
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewStore(path, nil).Load()
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "decode", perr.Op)
}

func TestCatalogKeepsOrder(t *testing.T) {
	s := writeFixture(t)
	snap, err := s.Load()
	require.NoError(t, err)

	require.Len(t, snap.Standards, 3)
	assert.Equal(t, "USA_FCC", snap.Standards[0].Name)
	assert.Equal(t, "Canada_ISED", snap.Standards[1].Name)
	assert.Equal(t, "EU_ETSI", snap.Standards[2].Name)
	assert.Equal(t, 2, snap.Standards.Len())

	fcc, cat, ok := snap.Standards.Find("FCC-15")
	require.True(t, ok)
	assert.Equal(t, "USA_FCC", cat)
	assert.Equal(t, "47", fcc.Title)
	assert.Equal(t, "2025-06-10", fcc.Version())

	ised, _, ok := snap.Standards.Find("RSS-247")
	require.True(t, ok)
	assert.Nil(t, ised.CurrentVersion)

	_, _, ok = snap.Standards.Find("nope")
	assert.False(t, ok)
}

func TestSaveRoundTrip(t *testing.T) {
	s := writeFixture(t)
	snap, err := s.Load()
	require.NoError(t, err)
	require.NoError(t, s.Save(snap))

	first, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(first), `"title": 47`)
	assert.Contains(t, string(first), `"url": "https://www.ecfr.gov/current/title-47"`)
	assert.Contains(t, string(first), `"EU_ETSI": []`)

	again, err := s.Load()
	require.NoError(t, err)
	require.NoError(t, s.Save(again))
	second, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	// 不留下临时文件
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveEmptySnapshot(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "history.json"), nil)
	require.NoError(t, s.Save(&Snapshot{}))
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"standards": {}`)
	assert.Contains(t, string(data), `"update_history": []`)
}

func TestSaveUnwritableDir(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "missing", "history.json"), nil)
	err := s.Save(&Snapshot{})
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "write", perr.Op)
}

func TestRecord(t *testing.T) {
	ev := func(id string) event.ChangeEvent {
		return event.ChangeEvent{StandardID: id, OldVersion: "a", NewVersion: "b"}
	}

	snap := &Snapshot{UpdateHistory: []event.ChangeEvent{ev("old")}}
	snap.Record([]event.ChangeEvent{ev("first"), ev("second")}, 100)
	ids := func() []string {
		var out []string
		for _, e := range snap.UpdateHistory {
			out = append(out, e.StandardID)
		}
		return out
	}
	assert.Equal(t, []string{"second", "first", "old"}, ids())

	snap.Record(nil, 100)
	assert.Len(t, snap.UpdateHistory, 3)

	t.Run("truncates to capacity", func(t *testing.T) {
		snap := &Snapshot{}
		for i := 0; i < 100; i++ {
			snap.UpdateHistory = append(snap.UpdateHistory, ev(fmt.Sprintf("h%03d", i)))
		}
		snap.Record([]event.ChangeEvent{ev("new")}, 100)
		require.Len(t, snap.UpdateHistory, 100)
		assert.Equal(t, "new", snap.UpdateHistory[0].StandardID)
		assert.Equal(t, "h098", snap.UpdateHistory[99].StandardID)
	})
}

func TestMarkFailed(t *testing.T) {
	s := writeFixture(t)
	require.NoError(t, s.MarkFailed("2025-07-28 09:00:00"))

	snap, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, StatusFail, snap.Metadata.Status)
	assert.Equal(t, "2025-07-28 09:00:00", snap.Metadata.LastRunTime)
	assert.Equal(t, 2, snap.Metadata.StandardsChecked)
	assert.Equal(t, 2, snap.Standards.Len())
}

func TestMarkFailedMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "history.json"), nil)
	require.NoError(t, s.MarkFailed("2025-07-28 09:00:00"))
	snap, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, StatusFail, snap.Metadata.Status)
}

func TestWatcherReloads(t *testing.T) {
	s := writeFixture(t)
	w := NewWatcher(s, nil)
	ch, err := w.Start()
	require.NoError(t, err)
	defer w.Stop()

	snap, err := s.Load()
	require.NoError(t, err)
	snap.Metadata.Status = StatusPartial
	require.NoError(t, s.Save(snap))

	select {
	case got := <-ch:
		require.NotNil(t, got)
		assert.Equal(t, StatusPartial, got.Metadata.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after save")
	}
}

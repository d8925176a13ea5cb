package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const state = `{
  "metadata": {"last_run_time": "2025-07-28 09:00:00", "standards_checked": 1, "status": "success"},
  "standards": {
    "Canada_ISED": [
      {"id": "RSS-247", "name": "RSS-247", "type": "ISED", "source_url": "http://127.0.0.1:1/rss-247", "current_version": "Issue 4 (July 24, 2025)", "last_checked": "2025-07-28 09:00:00"}
    ]
  },
  "update_history": [
    {"id": "RSS-247", "name": "RSS-247", "type": "ISED", "old_version": "Issue 3", "new_version": "Issue 4 (July 24, 2025)", "detected_at": "2025-07-21 09:00:00"}
  ]
}`

func TestStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(state), 0o644))
	t.Setenv("REGMON_STATE_FILE", path)
	t.Setenv("REGMON_LOG_LEVEL", "error")

	var out, errOut bytes.Buffer
	code := run([]string{"status"}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	assert.Contains(t, out.String(), "2025-07-28 09:00:00")
	assert.Contains(t, out.String(), "RSS-247")
	assert.Contains(t, out.String(), "Issue 4 (July 24, 2025)")
	assert.Contains(t, out.String(), "(1 recorded)")
}

func TestUnknownCommand(t *testing.T) {
	t.Setenv("REGMON_STATE_FILE", filepath.Join(t.TempDir(), "history.json"))
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run([]string{"bogus"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "usage: regmon")
}

func TestCheckRequiresID(t *testing.T) {
	t.Setenv("REGMON_STATE_FILE", filepath.Join(t.TempDir(), "history.json"))
	t.Setenv("REGMON_LOG_LEVEL", "fatal")
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, run([]string{"check"}, &out, &errOut))
}

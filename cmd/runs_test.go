//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/provision-cli/internal/store"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []store.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Services:  []string{"schools", "cinemas"},
			Status:    store.RunStatusComplete,
			Params:    store.RunParams{Origin: "cli"},
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Services:  []string{"kindergartens", "policlinics", "swimming_pools", "supermarkets"},
			Status:    store.RunStatusRunning,
			Params:    store.RunParams{Origin: "api"},
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "SERVICES")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "schools,cinemas")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "kindergartens,policlinics,s...")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "2m0s")
}

func TestComputeRunStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	runs := []store.Run{
		{ID: "1", Services: []string{"schools"}, Status: store.RunStatusComplete, CreatedAt: now, UpdatedAt: now.Add(10 * time.Second)},
		{ID: "2", Services: []string{"schools", "cinemas"}, Status: store.RunStatusComplete, CreatedAt: now, UpdatedAt: now.Add(20 * time.Second)},
		{ID: "3", Services: []string{"hospitals"}, Status: store.RunStatusFailed, CreatedAt: now, UpdatedAt: now},
		{ID: "4", Services: []string{"schools"}, Status: store.RunStatusRunning, CreatedAt: now, UpdatedAt: now},
		{ID: "5", Services: []string{"schools"}, Status: store.RunStatusComplete, CreatedAt: now.Add(-48 * time.Hour), UpdatedAt: now},
		{ID: "6", Services: []string{"schools", "bogus"}, Status: store.RunStatusPartial, CreatedAt: now, UpdatedAt: now.Add(30 * time.Second)},
	}

	s := computeRunStats(runs, now.Add(-24*time.Hour))
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Complete)
	assert.Equal(t, 1, s.Partial)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Running)
	assert.InDelta(t, 20.0, s.AvgDurSecs, 0.001)
	assert.Equal(t, map[string]int{"schools": 4, "cinemas": 1, "hospitals": 1, "bogus": 1}, s.Services)

	all := computeRunStats(runs, time.Time{})
	assert.Equal(t, 6, all.Total)
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{
		Total:      3,
		Complete:   2,
		Failed:     1,
		Services:   map[string]int{"schools": 2, "cinemas": 1},
		AvgDurSecs: 12.5,
	})

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "12.5s")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("cinemas")), bytes.Index(buf.Bytes(), []byte("schools")))
}

func TestFormatRunStats_NoDuration(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{Total: 1, Running: 1})
	assert.NotContains(t, buf.String(), "Avg duration")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}

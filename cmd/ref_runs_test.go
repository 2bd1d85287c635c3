package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Pooja-Y-P/lims-phase-2-sub000/internal/model"
)

func TestFormatImportRuns_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatImportRuns(&buf, nil)

	output := buf.String()
	// Should still have the header even if runs is nil.
	assert.Contains(t, output, "TABLE")
	assert.Contains(t, output, "SOURCE")
	assert.Contains(t, output, "STARTED")
}

func TestFormatImportRuns_SingleRun(t *testing.T) {
	started := time.Date(2026, 2, 20, 14, 30, 0, 0, time.UTC)
	finished := started.Add(3 * time.Minute)

	runs := []model.ImportRun{
		{
			ID:         "f3c9a1b2-0000-0000-0000-000000000000",
			TableName:  "master_standards",
			Source:     "standards.csv",
			RowsLoaded: 42,
			StartedAt:  started,
			FinishedAt: &finished,
		},
	}

	var buf bytes.Buffer
	formatImportRuns(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "master_standards")
	assert.Contains(t, output, "standards.csv")
	assert.Contains(t, output, "2026-02-20 14:30")
	assert.Contains(t, output, "3m0s")
	assert.Contains(t, output, "42")
}

func TestFormatImportRuns_Unfinished(t *testing.T) {
	started := time.Date(2026, 2, 20, 14, 30, 0, 0, time.UTC)

	runs := []model.ImportRun{
		{
			ID:        "a1b2c3d4-0000-0000-0000-000000000000",
			TableName: "cmc_bands",
			Source:    "cmc.xlsx",
			StartedAt: started,
		},
	}

	var buf bytes.Buffer
	formatImportRuns(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "cmc_bands")
	assert.Contains(t, output, "-") // duration should be "-"
}

func TestFormatImportRuns_LongSourceTruncated(t *testing.T) {
	started := time.Date(2026, 2, 20, 14, 30, 0, 0, time.UTC)
	longSource := "https://vendor.example.com/published/reference-sheets/2026/torque/master-standards-revision-17.xlsx"

	runs := []model.ImportRun{
		{
			ID:        "b2c3d4e5-0000-0000-0000-000000000000",
			TableName: "master_standards",
			Source:    longSource,
			StartedAt: started,
		},
	}

	var buf bytes.Buffer
	formatImportRuns(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "...")
	assert.NotContains(t, output, longSource)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exactly-10", truncate("exactly-10", 10))
	assert.Equal(t, "this is...", truncate("this is far too long", 10))
}

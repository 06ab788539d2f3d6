package main

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPrintJobRows(t *testing.T) {
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	defer func() {
		os.Stdout = oldStdout
	}()

	os.Stdout = w

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	completed := created.Add(42 * time.Second)
	err = printJobRows([]jobRow{
		{ID: 7, Type: "evaluation_plan", Status: "completed", CreatedAt: created, CompletedAt: &completed},
		{ID: 8, Type: "logic_model", Status: "pending", CreatedAt: created},
	})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	os.Stdout = oldStdout

	output, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	outStr := string(output)
	require.Contains(t, outStr, "evaluation_plan")
	require.Contains(t, outStr, "42s")
	require.Contains(t, outStr, "—")
}

func TestParseSweepFlags(t *testing.T) {
	opts, err := parseSweepFlags([]string{"-retention", "12h", "-batch", "500", "-yes"})
	require.NoError(t, err)
	require.Equal(t, 12*time.Hour, opts.Retention)
	require.Equal(t, 500, opts.BatchSize)
	require.True(t, opts.Yes)
}

func TestConfirmRequiresYes(t *testing.T) {
	require.Error(t, confirm(false, "delete terminal jobs"))
	require.NoError(t, confirm(true, "delete terminal jobs"))
}

package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTextToSQL_Logger_Levels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, false)
	log.Debug("pipeline: hidden")
	log.Info("pipeline: shown", "tier", "keyword", "empty", "")
	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "pipeline: shown")
	require.Contains(t, out, "keyword")
	require.NotContains(t, out, "empty=")

	buf.Reset()
	NewWithWriter(&buf, true).Debug("pipeline: step 1 - retrieving context")
	require.Contains(t, buf.String(), "retrieving context")
}

func TestTextToSQL_Logger_FormatRFC3339Millis(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 3, 4, 5, 6, 7, 89_000_000, time.FixedZone("x", 3600))
	require.Equal(t, "2025-03-04T04:06:07.089Z", formatRFC3339Millis(ts))
}

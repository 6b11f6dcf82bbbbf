package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffSummaryRoundTrips(t *testing.T) {
	summary := DiffSummary{CourseKey: "oslo_golfklubb", Date: "2026-08-15", Added: 2, Removed: 1, Increased: 0}

	data, err := json.Marshal(summary)
	require.NoError(t, err)

	var decoded DiffSummary
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, summary, decoded)
}

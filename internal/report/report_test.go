package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-edge-placement/internal/optimizer"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

func samplePlacement() *core.Placement {
	points := []core.DemandPoint{
		{ID: 10, Latitude: 1.5, Longitude: 2.25, Workload: 3},
		{ID: 11, Latitude: 1.6, Longitude: 2.35, Workload: 1},
		{ID: 12, Latitude: 9, Longitude: 9, Workload: 2},
	}
	return core.NewPlacement("TopK", points, []int{0, 2}, []int{0, 0, 1})
}

func TestFormatting(t *testing.T) {
	p := samplePlacement()
	assert.Equal(t, "ES 0: (1.50000, 2.25000); ES 1: (9.00000, 9.00000)", ServerLocations(p))
	assert.Equal(t, "ES 0: [10, 11]; ES 1: [12]", Assignment(p))
}

func TestFromResults_SkipsFailures(t *testing.T) {
	results := []optimizer.Result{
		{NumPoints: 3, NumServers: 2, Placer: "TopK", Duration: 1500 * time.Millisecond, Placement: samplePlacement(),
			Objectives: core.Objectives{WorkloadImbalance: 2, AverageDelay: 0.5}},
		{NumPoints: 3, NumServers: 2, Placer: "MIP", Err: errors.New("boom")},
	}
	records := FromResults(results)
	require.Len(t, records, 1)
	assert.Equal(t, "TopK", records[0].Placer)
	assert.InDelta(t, 1.5, records[0].DurationSeconds, 1e-12)
}

func TestWriteCSV(t *testing.T) {
	records := []Record{{
		NumPoints:       3,
		NumServers:      2,
		Placer:          "TopK",
		Objectives:      core.Objectives{WorkloadImbalance: 2, AverageDelay: 0.25, AverageWorkload: 3, MaxWorkload: 4, MinWorkload: 2},
		DurationSeconds: 0.5,
		ServerLocations: ServerLocations(samplePlacement()),
		Assignment:      Assignment(samplePlacement()),
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"3", "2", "TopK", "2", "0.25", "3", "4", "2", "0.5",
		"ES 0: (1.50000, 2.25000); ES 1: (9.00000, 9.00000)", "ES 0: [10, 11]; ES 1: [12]"}, rows[1])
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, []Record{{NumPoints: 3, NumServers: 2, Placer: "TopK"}}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "N"))
	assert.Contains(t, lines[1], "TopK")
}

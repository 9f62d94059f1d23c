// Package report renders placement results as CSV records or a text table.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/llm-d/llm-d-edge-placement/internal/optimizer"
	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

// Header lists the CSV columns in order.
var Header = []string{
	"num_demand_points",
	"num_servers",
	"placer",
	"workload_imbalance",
	"avg_delay",
	"avg_workload",
	"max_workload",
	"min_workload",
	"duration_seconds",
	"server_locations",
	"assignment",
}

// Record is one flat result row.
type Record struct {
	NumPoints       int
	NumServers      int
	Placer          string
	Objectives      core.Objectives
	DurationSeconds float64
	ServerLocations string
	Assignment      string
}

// FromResults converts successful results into records, keeping their order.
func FromResults(results []optimizer.Result) []Record {
	records := make([]Record, 0, len(results))
	for _, r := range results {
		if r.Err != nil || r.Placement == nil {
			continue
		}
		records = append(records, Record{
			NumPoints:       r.NumPoints,
			NumServers:      r.NumServers,
			Placer:          r.Placer,
			Objectives:      r.Objectives,
			DurationSeconds: r.Duration.Seconds(),
			ServerLocations: ServerLocations(r.Placement),
			Assignment:      Assignment(r.Placement),
		})
	}
	return records
}

// ServerLocations formats servers as "ES 0: (lat, lng); ES 1: (lat, lng)".
func ServerLocations(p *core.Placement) string {
	parts := make([]string, len(p.Servers))
	for i, s := range p.Servers {
		parts[i] = fmt.Sprintf("ES %d: (%.5f, %.5f)", s.ID, s.Latitude, s.Longitude)
	}
	return strings.Join(parts, "; ")
}

// Assignment formats the assigned demand point IDs as "ES 0: [1, 4]; ES 1: [2]".
func Assignment(p *core.Placement) string {
	parts := make([]string, len(p.Servers))
	for i, s := range p.Servers {
		ids := make([]string, len(s.AssignedPoints))
		for j, dp := range s.AssignedPoints {
			ids[j] = strconv.Itoa(dp.ID)
		}
		parts[i] = fmt.Sprintf("ES %d: [%s]", s.ID, strings.Join(ids, ", "))
	}
	return strings.Join(parts, "; ")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (r Record) row() []string {
	return []string{
		strconv.Itoa(r.NumPoints),
		strconv.Itoa(r.NumServers),
		r.Placer,
		formatFloat(r.Objectives.WorkloadImbalance),
		formatFloat(r.Objectives.AverageDelay),
		formatFloat(r.Objectives.AverageWorkload),
		formatFloat(r.Objectives.MaxWorkload),
		formatFloat(r.Objectives.MinWorkload),
		formatFloat(r.DurationSeconds),
		r.ServerLocations,
		r.Assignment,
	}
}

// WriteCSV writes the header followed by one row per record.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(r.row()); err != nil {
			return fmt.Errorf("failed to write record for %s K=%d: %w", r.Placer, r.NumServers, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTable writes an aligned summary without the location and assignment columns.
func WriteTable(w io.Writer, records []Record) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "N\tK\tPLACER\tIMBALANCE\tAVG DELAY\tAVG WORKLOAD\tDURATION(s)")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%.4f\t%.4f\t%.4f\t%.3f\n",
			r.NumPoints, r.NumServers, r.Placer,
			r.Objectives.WorkloadImbalance, r.Objectives.AverageDelay, r.Objectives.AverageWorkload,
			r.DurationSeconds)
	}
	return tw.Flush()
}

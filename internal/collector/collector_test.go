package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d/llm-d-edge-placement/pkg/core"
)

const stationsCSV = `,id,address,latitude,longitude
0,1,addr-a,31.23,121.47
1,2,addr-b,31.24,121.48
2,3,addr-c,31.25,121.49
`

const transactionsCSV = `,month,date,user id,start time,end time,address
0,201406,20140603,u1,2014-06-03 13:02:36,2014-06-03 13:32:36,addr-a
1,201406,20140603,u2,2014-06-03 14:00:00,2014-06-03 14:10:00,addr-a
2,201406,20140603,u1,2014-06-03 15:00:00,2014-06-03 16:00:00,addr-a
3,201406,20140603,u3,2014-06-03 15:00:00,2014-06-03 15:20:00,addr-b
4,201406,20140603,u9,2014-06-03 15:00:00,2014-06-03 15:20:00,addr-x
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCollect(t *testing.T) {
	stations := NewCSVStationSource(writeFile(t, "bs.csv", stationsCSV))
	txs := NewCSVTransactionSource(writeFile(t, "tx.csv", transactionsCSV))

	points, summary, err := Collect(context.Background(), stations, txs)
	require.NoError(t, err)
	assert.Equal(t, Summary{Stations: 3, Transactions: 5, Unmatched: 1, Idle: 1}, summary)

	want := []core.DemandPoint{
		{ID: 1, Address: "addr-a", Latitude: 31.23, Longitude: 121.47, Workload: 100, UserCount: 2, PotentialScore: 1},
		{ID: 2, Address: "addr-b", Latitude: 31.24, Longitude: 121.48, Workload: 20, UserCount: 1, PotentialScore: 0.5*0.5 + 0.5*0.2},
		{ID: 3, Address: "addr-c", Latitude: 31.25, Longitude: 121.49},
	}
	if diff := cmp.Diff(want, points); diff != "" {
		t.Errorf("Collect() mismatch (-want +got):\n%s", diff)
	}
}

func TestStations_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "Test case 1: empty file",
			content: "",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "Test case 2: missing longitude column",
			content: "id,address,latitude\n1,a,1.0\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "Test case 3: bad latitude",
			content: "id,address,latitude,longitude\n1,a,north,1.0\n",
			wantErr: ErrMalformedRecord,
		},
		{
			name:    "Test case 4: bad id",
			content: "id,address,latitude,longitude\nx,a,1.0,1.0\n",
			wantErr: ErrMalformedRecord,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewCSVStationSource(writeFile(t, "bs.csv", tt.content))
			_, err := src.Stations(context.Background())
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestStations_MissingFile(t *testing.T) {
	src := NewCSVStationSource(filepath.Join(t.TempDir(), "absent.csv"))
	_, err := src.Stations(context.Background())
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestStations_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCSVStationSource(writeFile(t, "bs.csv", stationsCSV)).Stations(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransactions_BadTimestamp(t *testing.T) {
	content := "address,user id,start time,end time\na,u1,yesterday,2014-06-03 13:32:36\n"
	_, err := NewCSVTransactionSource(writeFile(t, "tx.csv", content)).Transactions(context.Background())
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestParseTime(t *testing.T) {
	want := time.Date(2014, 6, 3, 13, 2, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
	}{
		{name: "Test case 1: dashes with seconds", value: "2014-06-03 13:02:00"},
		{name: "Test case 2: dashes without seconds", value: "2014-06-03 13:02"},
		{name: "Test case 3: slashes", value: "2014/6/3 13:02"},
		{name: "Test case 4: RFC3339", value: "2014-06-03T13:02:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.value)
			require.NoError(t, err)
			assert.True(t, want.Equal(got), "got %v", got)
		})
	}
}

func TestComputePotentialScores(t *testing.T) {
	tests := []struct {
		name   string
		points []core.DemandPoint
		want   []float64
	}{
		{
			name: "Test case 1: both columns vary",
			points: []core.DemandPoint{
				{Workload: 0, UserCount: 0},
				{Workload: 50, UserCount: 4},
				{Workload: 100, UserCount: 2},
			},
			want: []float64{0, 0.5*1 + 0.5*0.5, 0.5*0.5 + 0.5*1},
		},
		{
			name: "Test case 2: constant columns keep raw values",
			points: []core.DemandPoint{
				{Workload: 3, UserCount: 2},
				{Workload: 3, UserCount: 2},
			},
			want: []float64{2.5, 2.5},
		},
		{
			name:   "Test case 3: empty",
			points: nil,
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ComputePotentialScores(tt.points)
			var got []float64
			for _, p := range tt.points {
				got = append(got, p.PotentialScore)
			}
			assert.InDeltaSlice(t, tt.want, got, 1e-12)
		})
	}
}

func TestFilterByPotential(t *testing.T) {
	points := []core.DemandPoint{
		{ID: 1, PotentialScore: 0.05},
		{ID: 2, PotentialScore: 0.1},
		{ID: 3, PotentialScore: 0.9},
	}
	kept := FilterByPotential(context.Background(), points, 0.1)
	require.Len(t, kept, 2)
	assert.Equal(t, 2, kept[0].ID)
	assert.Equal(t, 3, kept[1].ID)
}

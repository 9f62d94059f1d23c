package core

// AssignNearest attaches each of the first n demand points to the slot whose site is
// closest. A point that is itself a site stays on its own slot; other ties go to the
// lowest slot.
func AssignNearest(distances DistanceMatrix, sites []int, n int) []int {
	slotOf := make(map[int]int, len(sites))
	for slot, site := range sites {
		if _, dup := slotOf[site]; !dup {
			slotOf[site] = slot
		}
	}
	assignment := make([]int, n)
	for i := 0; i < n; i++ {
		if slot, ok := slotOf[i]; ok {
			assignment[i] = slot
			continue
		}
		best := 0
		for slot := 1; slot < len(sites); slot++ {
			if distances[i][sites[slot]] < distances[i][sites[best]] {
				best = slot
			}
		}
		assignment[i] = best
	}
	return assignment
}

// SelectedIndices returns the indices of the set entries of a 0/1 selection vector.
func SelectedIndices(selection []int) []int {
	var out []int
	for i, bit := range selection {
		if bit == 1 {
			out = append(out, i)
		}
	}
	return out
}

// TotalWorkload sums the workload of the first n demand points.
func TotalWorkload(points []DemandPoint, n int) float64 {
	total := 0.0
	for _, p := range points[:n] {
		total += p.Workload
	}
	return total
}

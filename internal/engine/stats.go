package engine

import (
	"cmp"
	"math"
	"slices"
)

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
// It is computed as a running mean, so a constant slice yields exactly its
// value.
func Mean(values []float64) float64 {
	m := 0.0
	for i, v := range values {
		m += (v - m) / float64(i+1)
	}
	return m
}

// StdDev returns the population standard deviation of values.
func StdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := Mean(values)
	ss := 0.0
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between the closest ranks. values is not modified.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 || p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	h := float64(n-1) * p / 100
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= n {
		return sorted[n-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// TopKSum returns the sum of the k largest values. k is clamped to len(values).
// The selected values are added in slice order.
func TopKSum(values []float64, k int) float64 {
	return sumAt(values, topK(rankDesc(values), k))
}

// rankDesc returns the indices of values ordered by value, largest first.
// Equal values keep index order.
func rankDesc(values []float64) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int { return cmp.Compare(values[b], values[a]) })
	return idx
}

// topK returns the first k ranked indices in ascending index order.
func topK(rank []int, k int) []int {
	k = min(max(k, 0), len(rank))
	idx := slices.Clone(rank[:k])
	slices.Sort(idx)
	return idx
}

// sumAt adds values[i] for each index in idx, in idx order.
func sumAt(values []float64, idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += values[i]
	}
	return sum
}

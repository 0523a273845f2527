package peaks

import (
	"math"
	"sort"
)

// NoHeight disables the height filter.
var NoHeight = math.Inf(-1)

// Options constrains which local maxima are reported.
type Options struct {
	MinHeight     float64 // minimum peak value; NoHeight disables the filter
	MinProminence float64 // minimum prominence; <= 0 keeps every peak
	MinDistance   int     // minimum index separation; <= 1 disables the filter
}

// Peak describes one detected local maximum.
type Peak struct {
	Index      int
	Height     float64
	Prominence float64
	LeftBase   int // index of the minimum bounding the peak on the left
	RightBase  int // index of the minimum bounding the peak on the right
}

// Find returns the local maxima of x that satisfy opts, in ascending index order.
func Find(x []float64, opts Options) []Peak {
	candidates := localMaxima(x)

	if !math.IsInf(opts.MinHeight, -1) {
		kept := candidates[:0]
		for _, i := range candidates {
			if x[i] >= opts.MinHeight {
				kept = append(kept, i)
			}
		}
		candidates = kept
	}

	if opts.MinDistance > 1 {
		candidates = selectByDistance(x, candidates, opts.MinDistance)
	}

	out := make([]Peak, 0, len(candidates))
	for _, i := range candidates {
		prom, left, right := prominence(x, i)
		if opts.MinProminence > 0 && prom < opts.MinProminence {
			continue
		}
		out = append(out, Peak{
			Index:      i,
			Height:     x[i],
			Prominence: prom,
			LeftBase:   left,
			RightBase:  right,
		})
	}
	return out
}

// Indices returns the sample indices of ps.
func Indices(ps []Peak) []int {
	out := make([]int, len(ps))
	for i, p := range ps {
		out[i] = p.Index
	}
	return out
}

// First returns the lowest-index peak of x that satisfies opts.
func First(x []float64, opts Options) (Peak, bool) {
	found := Find(x, opts)
	if len(found) == 0 {
		return Peak{}, false
	}
	return found[0], true
}

// localMaxima finds strict local maxima; flat plateaus report their midpoint
// (rounded down).
func localMaxima(x []float64) []int {
	var out []int
	n := len(x)
	i := 1
	for i < n-1 {
		if x[i-1] < x[i] {
			ahead := i + 1
			for ahead < n-1 && x[ahead] == x[i] {
				ahead++
			}
			if x[ahead] < x[i] {
				out = append(out, (i+ahead-1)/2)
				i = ahead
			}
		}
		i++
	}
	return out
}

// selectByDistance keeps the highest peaks and removes weaker neighbours closer
// than distance. Equal heights favour the lower index.
func selectByDistance(x []float64, idx []int, distance int) []int {
	order := make([]int, len(idx))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return x[idx[order[a]]] > x[idx[order[b]]]
	})

	keep := make([]bool, len(idx))
	for i := range keep {
		keep[i] = true
	}

	for _, j := range order {
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && idx[j]-idx[k] < distance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(idx) && idx[k]-idx[j] < distance; k++ {
			keep[k] = false
		}
	}

	out := make([]int, 0, len(idx))
	for i, p := range idx {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// prominence measures how far x[p] rises above the higher of the lowest points
// reachable on either side before meeting a higher sample.
func prominence(x []float64, p int) (prom float64, leftBase, rightBase int) {
	peak := x[p]

	leftMin := peak
	leftBase = p
	for i := p; i >= 0 && x[i] <= peak; i-- {
		if x[i] < leftMin {
			leftMin = x[i]
			leftBase = i
		}
	}

	rightMin := peak
	rightBase = p
	for i := p; i < len(x) && x[i] <= peak; i++ {
		if x[i] < rightMin {
			rightMin = x[i]
			rightBase = i
		}
	}

	return peak - math.Max(leftMin, rightMin), leftBase, rightBase
}

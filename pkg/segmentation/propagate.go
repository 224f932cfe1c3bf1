package segmentation

import (
	"container/heap"
	"math"
)

// stepCostFunc returns the cost of moving from pixel index `from` to the
// adjacent pixel index `to`, where stepLen is the Euclidean length of the
// step (1 for axial moves, sqrt 2 for diagonal moves).
type stepCostFunc func(from, to int, stepLen float64) float64

// frontierItem is one pending claim on the propagation frontier.
type frontierItem struct {
	cost  float64
	dist  float64
	label int
	index int
}

// frontier is a min-heap over pending claims. Ordering is the tie-break
// rule for the whole segmentation: lowest cumulative cost first, then
// lowest label id, then raster index. Pixels contested at exactly equal
// cost therefore always go to the lower object id.
type frontier []frontierItem

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	if f[i].cost != f[j].cost {
		return f[i].cost < f[j].cost
	}
	if f[i].label != f[j].label {
		return f[i].label < f[j].label
	}
	return f[i].index < f[j].index
}

func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(frontierItem)) }

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	item := old[n-1]
	*f = old[:n-1]
	return item
}

var neighborSteps = [8]struct {
	dx, dy int
	len    float64
}{
	{1, 0, 1}, {-1, 0, 1}, {0, 1, 1}, {0, -1, 1},
	{1, 1, math.Sqrt2}, {1, -1, math.Sqrt2}, {-1, 1, math.Sqrt2}, {-1, -1, math.Sqrt2},
}

// propagate runs a multi-source weighted shortest-path flood fill over the
// pixel grid. labels holds the sources (positive entries) and receives the
// result in place; allowed marks pixels that may be claimed; maxDist bounds
// the cumulative Euclidean step length from the nearest source. Pixels that
// are unreachable, disallowed, or beyond maxDist keep their input value.
//
// The frontier is a priority queue, not a raster sweep: pixels settle in
// order of increasing cumulative cost, which is what makes boundaries
// between competing sources land on the strictly cheaper claimant.
func propagate(labels []int, allowed []bool, width, height int, cost stepCostFunc, maxDist float64) {
	settled := make([]bool, len(labels))
	f := make(frontier, 0, 256)

	for idx, label := range labels {
		if label > 0 {
			settled[idx] = true
		}
	}
	for idx, label := range labels {
		if label > 0 {
			pushNeighbors(&f, labels, settled, allowed, width, height, cost, maxDist, frontierItem{0, 0, label, idx})
		}
	}

	for f.Len() > 0 {
		item := heap.Pop(&f).(frontierItem)
		if settled[item.index] {
			continue
		}
		settled[item.index] = true
		labels[item.index] = item.label
		pushNeighbors(&f, labels, settled, allowed, width, height, cost, maxDist, item)
	}
}

func pushNeighbors(f *frontier, labels []int, settled, allowed []bool, width, height int, cost stepCostFunc, maxDist float64, item frontierItem) {
	x, y := item.index%width, item.index/width
	for _, s := range neighborSteps {
		nx, ny := x+s.dx, y+s.dy
		if nx < 0 || ny < 0 || nx >= width || ny >= height {
			continue
		}
		nidx := ny*width + nx
		if settled[nidx] || !allowed[nidx] {
			continue
		}
		dist := item.dist + s.len
		if dist > maxDist {
			continue
		}
		heap.Push(f, frontierItem{
			cost:  item.cost + cost(item.index, nidx, s.len),
			dist:  dist,
			label: item.label,
			index: nidx,
		})
	}
}

package measure

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph/simple"

	"cellquant/internal/models"
)

// Neighborhood rules accepted by BuildGraph.
const (
	RuleBorder = "border"
	RuleKNN    = "knn"
)

// Edge is one directed spatial-graph edge between two cell ids.
// Undirected neighborhood semantics store both directions.
type Edge struct {
	From int
	To   int
}

// GraphSpec configures spatial graph construction.
type GraphSpec struct {
	// Rule selects the neighborhood criterion: "border" connects cells
	// with at least one adjacent pixel pair, "knn" connects each cell to
	// its K nearest centroids.
	Rule string

	// K is the neighbor count for the knn rule.
	K int

	// Adjacency is the pixel connectivity for the border rule: 4 or 8.
	Adjacency int
}

// Validate checks the spec at pipeline construction time.
func (s GraphSpec) Validate() error {
	switch s.Rule {
	case RuleBorder:
		if s.Adjacency != 4 && s.Adjacency != 8 {
			return fmt.Errorf("%w: border adjacency must be 4 or 8, got %d", models.ErrConfiguration, s.Adjacency)
		}
	case RuleKNN:
		if s.K <= 0 {
			return fmt.Errorf("%w: knn neighbor count must be positive, got %d", models.ErrConfiguration, s.K)
		}
	default:
		return fmt.Errorf("%w: unknown neighborhood rule %q", models.ErrConfiguration, s.Rule)
	}
	return nil
}

// BuildGraph derives the spatial neighborhood graph of a mask under the
// given rule. Border-contact edges are symmetric and stored in both
// directions; knn edges are directed as computed. The edge list is sorted
// by (From, To), contains no self loops and never references the
// background label. A mask without objects yields an empty edge list.
func BuildGraph(m *models.LabelMask, spec GraphSpec) ([]Edge, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	g := simple.NewDirectedGraph()
	switch spec.Rule {
	case RuleBorder:
		addBorderEdges(g, m, spec.Adjacency)
	case RuleKNN:
		addKNNEdges(g, m, spec.K)
	}

	edges := make([]Edge, 0)
	it := g.Edges()
	for it.Next() {
		e := it.Edge()
		edges = append(edges, Edge{From: int(e.From().ID()), To: int(e.To().ID())})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges, nil
}

// addBorderEdges connects every pair of distinct labels with at least one
// adjacent pixel pair. Scanning right/down (and the two down diagonals for
// 8-connectivity) visits each unordered pixel pair once.
func addBorderEdges(g *simple.DirectedGraph, m *models.LabelMask, adjacency int) {
	steps := [][2]int{{1, 0}, {0, 1}}
	if adjacency == 8 {
		steps = append(steps, [2]int{1, 1}, [2]int{-1, 1})
	}
	for idx, a := range m.Data {
		if a == 0 {
			continue
		}
		x, y := idx%m.Width, idx/m.Width
		for _, s := range steps {
			nx, ny := x+s[0], y+s[1]
			if nx < 0 || nx >= m.Width || ny >= m.Height {
				continue
			}
			b := m.Data[ny*m.Width+nx]
			if b == 0 || b == a {
				continue
			}
			setEdge(g, a, b)
			setEdge(g, b, a)
		}
	}
}

// addKNNEdges connects each cell to its k nearest centroids. Distance
// ties resolve to the lower label so the edge set is deterministic.
func addKNNEdges(g *simple.DirectedGraph, m *models.LabelMask, k int) {
	props := RegionProps(m)
	for i, a := range props {
		type cand struct {
			label  int
			distSq float64
		}
		cands := make([]cand, 0, len(props)-1)
		for j, b := range props {
			if i == j {
				continue
			}
			dy := a.Centroid0 - b.Centroid0
			dx := a.Centroid1 - b.Centroid1
			cands = append(cands, cand{b.Label, dx*dx + dy*dy})
		}
		sort.Slice(cands, func(x, y int) bool {
			if cands[x].distSq != cands[y].distSq {
				return cands[x].distSq < cands[y].distSq
			}
			return cands[x].label < cands[y].label
		})
		n := k
		if n > len(cands) {
			n = len(cands)
		}
		for _, c := range cands[:n] {
			setEdge(g, a.Label, c.label)
		}
	}
}

func setEdge(g *simple.DirectedGraph, from, to int) {
	f, t := simple.Node(int64(from)), simple.Node(int64(to))
	if g.Node(f.ID()) == nil {
		g.AddNode(f)
	}
	if g.Node(t.ID()) == nil {
		g.AddNode(t)
	}
	if !g.HasEdgeFromTo(f.ID(), t.ID()) {
		g.SetEdge(g.NewEdge(f, t))
	}
}

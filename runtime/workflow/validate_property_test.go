package workflow

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/flowd-dev/flowd/runtime/floerr"
)

type graphCase struct {
	NodeCount int
	Edges     [][2]int
}

func genGraphCase(maxNodes int) gopter.Gen {
	return gen.IntRange(1, maxNodes).FlatMap(func(v interface{}) gopter.Gen {
		n := v.(int)
		edgeGen := gopter.CombineGens(gen.IntRange(0, n-1), gen.IntRange(0, n-1)).
			Map(func(vals []interface{}) [2]int {
				return [2]int{vals[0].(int), vals[1].(int)}
			})
		return gen.SliceOf(edgeGen).Map(func(edges [][2]int) graphCase {
			return graphCase{NodeCount: n, Edges: edges}
		})
	}, reflect.TypeOf(graphCase{}))
}

func (g graphCase) workflow() *Workflow {
	w := &Workflow{ID: "wf"}
	for i := 0; i < g.NodeCount; i++ {
		w.Nodes = append(w.Nodes, Node{ID: nodeName(i), Type: KindTransform, Label: nodeName(i)})
	}
	for i, e := range g.Edges {
		w.Edges = append(w.Edges, Edge{
			ID:     fmt.Sprintf("e%d", i),
			Source: nodeName(e[0]),
			Target: nodeName(e[1]),
		})
	}
	return w
}

func nodeName(i int) string { return fmt.Sprintf("n%d", i) }

// hasTopoSort is the reference oracle: Kahn's algorithm covers every node iff
// the graph is acyclic.
func hasTopoSort(n int, edges [][2]int) bool {
	indegree := make([]int, n)
	adjacency := make([][]int, n)
	for _, e := range edges {
		adjacency[e[0]] = append(adjacency[e[0]], e[1])
		indegree[e[1]]++
	}
	var queue []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	seen := 0
	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]
		seen++
		for _, y := range adjacency[x] {
			indegree[y]--
			if indegree[y] == 0 {
				queue = append(queue, y)
			}
		}
	}
	return seen == n
}

func TestValidateAcceptsExactlyAcyclicGraphsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("graph accepted iff a topological sort exists", prop.ForAll(
		func(g graphCase) bool {
			err := Validate(g.workflow())
			acyclic := hasTopoSort(g.NodeCount, g.Edges)
			if acyclic {
				return err == nil
			}
			return floerr.Is(err, floerr.KindCycleDetected)
		},
		genGraphCase(10),
	))

	properties.TestingRun(t)
}

func TestValidateReportsDanglingEndpointProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("missing endpoint is reported by name", prop.ForAll(
		func(g graphCase, missingTarget bool, ghost int) bool {
			// Keep the base graph acyclic so the dangling edge is the only
			// defect under test.
			if !hasTopoSort(g.NodeCount, g.Edges) {
				return true
			}
			w := g.workflow()
			ghostID := fmt.Sprintf("ghost%d", ghost)
			dangling := Edge{ID: "dangling", Source: nodeName(0), Target: ghostID}
			if !missingTarget {
				dangling = Edge{ID: "dangling", Source: ghostID, Target: nodeName(0)}
			}
			w.Edges = append(w.Edges, dangling)

			err := Validate(w)
			return floerr.Is(err, floerr.KindDanglingEdge) && strings.Contains(err.Error(), ghostID)
		},
		genGraphCase(8),
		gen.Bool(),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

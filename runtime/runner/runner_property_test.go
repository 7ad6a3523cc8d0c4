package runner

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/flowd-dev/flowd/runtime/events"
	"github.com/flowd-dev/flowd/runtime/workflow"
	"github.com/flowd-dev/flowd/tools"
)

type dagCase struct {
	NodeCount int
	Edges     [][2]int
}

// genDAGCase generates acyclic graphs by orienting every edge from the lower
// node index to the higher one.
func genDAGCase(maxNodes int) gopter.Gen {
	return gen.IntRange(1, maxNodes).FlatMap(func(v interface{}) gopter.Gen {
		n := v.(int)
		edgeGen := gopter.CombineGens(gen.IntRange(0, n-1), gen.IntRange(0, n-1)).
			Map(func(vals []interface{}) [2]int {
				a, b := vals[0].(int), vals[1].(int)
				if a > b {
					a, b = b, a
				}
				return [2]int{a, b}
			})
		return gen.SliceOf(edgeGen).Map(func(edges [][2]int) dagCase {
			kept := make([][2]int, 0, len(edges))
			for _, e := range edges {
				if e[0] != e[1] {
					kept = append(kept, e)
				}
			}
			return dagCase{NodeCount: n, Edges: kept}
		})
	}, reflect.TypeOf(dagCase{}))
}

func (g dagCase) workflow() *workflow.Workflow {
	w := &workflow.Workflow{ID: "wf"}
	for i := 0; i < g.NodeCount; i++ {
		id := fmt.Sprintf("n%d", i)
		w.Nodes = append(w.Nodes, workflow.Node{ID: id, Type: workflow.KindTransform, Label: id})
	}
	for i, e := range g.Edges {
		w.Edges = append(w.Edges, workflow.Edge{
			ID:     fmt.Sprintf("e%d", i),
			Source: fmt.Sprintf("n%d", e[0]),
			Target: fmt.Sprintf("n%d", e[1]),
		})
	}
	return w
}

// seqDispatcher stamps every dispatch with a global sequence number.
type seqDispatcher struct {
	mu   sync.Mutex
	next int
	seen map[string][]int
}

func newSeqDispatcher() *seqDispatcher {
	return &seqDispatcher{seen: make(map[string][]int)}
}

func (s *seqDispatcher) Dispatch(_ context.Context, node workflow.Node, input any, _ *tools.Context) (any, error) {
	s.mu.Lock()
	s.seen[node.ID] = append(s.seen[node.ID], s.next)
	s.next++
	s.mu.Unlock()
	return input, nil
}

func TestScheduleRespectsEdgeOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every node runs once and never before its upstreams", prop.ForAll(
		func(g dagCase) bool {
			wf := g.workflow()
			d := newSeqDispatcher()
			r := New(Options{
				Workflow:    wf,
				ExecutionID: "exec-prop",
				Input:       nil,
				Dispatcher:  d,
				Bus:         events.NewBus(),
			})
			if _, err := r.Run(context.Background()); err != nil {
				return false
			}
			for _, n := range wf.Nodes {
				if len(d.seen[n.ID]) != 1 {
					return false
				}
			}
			// A node settles in a strictly earlier batch than anything it feeds,
			// so its sequence stamp is strictly smaller.
			for _, e := range wf.Edges {
				if d.seen[e.Source][0] >= d.seen[e.Target][0] {
					return false
				}
			}
			return true
		},
		genDAGCase(8),
	))

	properties.TestingRun(t)
}

func TestStopAlwaysTerminatesProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("stop wins even against a dispatcher that blocks until cancel", prop.ForAll(
		func(g dagCase) bool {
			wf := g.workflow()
			var once sync.Once
			started := make(chan struct{})
			d := &stubDispatcher{fn: func(ctx context.Context, node workflow.Node, input any) (any, error) {
				once.Do(func() { close(started) })
				<-ctx.Done()
				return input, nil
			}}
			r := New(Options{
				Workflow:    wf,
				ExecutionID: "exec-prop",
				Dispatcher:  d,
				Bus:         events.NewBus(),
			})
			done := make(chan error, 1)
			go func() {
				_, err := r.Run(context.Background())
				done <- err
			}()
			<-started
			r.Stop()
			return <-done == ErrStopped
		},
		genDAGCase(6),
	))

	properties.TestingRun(t)
}

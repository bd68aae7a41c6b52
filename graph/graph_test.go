package graph

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type flow struct {
	n     int
	trail []string
}

func step(name string, delta int) NodeFunc[*flow] {
	return func(_ context.Context, f *flow) (*flow, error) {
		f.n += delta
		f.trail = append(f.trail, name)
		return f, nil
	}
}

func TestAddNodeEmptyName(t *testing.T) {
	g := NewGraph[*flow]()
	defer func() {
		if r := recover(); r != "node name cannot be empty" {
			t.Errorf("unexpected panic value %v", r)
		}
	}()
	g.AddNode(&Node[*flow]{Type: NodeTypeCustom, Execute: step("x", 0)})
}

func TestAddNodeDuplicate(t *testing.T) {
	g := NewGraph[*flow]()
	g.AddNode(&Node[*flow]{Name: "dup", Type: NodeTypeCustom, Execute: step("x", 0)})
	defer func() {
		if r := recover(); r != "node dup already exists" {
			t.Errorf("unexpected panic value %v", r)
		}
	}()
	g.AddNode(&Node[*flow]{Name: "dup", Type: NodeTypeCustom, Execute: step("x", 0)})
}

func TestAddNodeRequiresFunctions(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for custom node without Execute")
		}
	}()
	NewGraph[*flow]().AddNode(&Node[*flow]{Name: "x", Type: NodeTypeCustom})
}

func TestExecuteRoutesOnCondition(t *testing.T) {
	build := func(route string) *Graph[*flow] {
		g, err := NewBuilder[*flow]().
			AddNode("start", NodeTypeStart, nil).
			AddNode("load", NodeTypeCustom, step("load", 1)).
			AddConditionNode("route", func(context.Context, *flow) (string, error) { return route, nil },
				map[string]string{"ask": "ask", "answer": "answer"}).
			AddNode("ask", NodeTypeCustom, step("ask", 10)).
			AddNode("answer", NodeTypeCustom, step("answer", 100)).
			AddNode("end", NodeTypeEnd, step("end", 0)).
			AddEdge("start", "load").
			AddEdge("load", "route").
			AddEdge("ask", "end").
			AddEdge("answer", "end").
			Build()
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		return g
	}

	got, err := build("ask").Execute(context.Background(), &flow{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.n != 11 || !reflect.DeepEqual(got.trail, []string{"load", "ask", "end"}) {
		t.Errorf("ask path: n=%d trail=%v", got.n, got.trail)
	}

	got, _ = build("answer").Execute(context.Background(), &flow{})
	if got.n != 101 {
		t.Errorf("answer path: n=%d", got.n)
	}

	_, err = build("other").Execute(context.Background(), &flow{})
	if err == nil || !strings.Contains(err.Error(), "no route") {
		t.Errorf("expected missing route error, got %v", err)
	}
}

func TestExecuteStopsOnNodeError(t *testing.T) {
	boom := errors.New("boom")
	g, err := NewBuilder[*flow]().
		AddNode("start", NodeTypeStart, nil).
		AddNode("fail", NodeTypeCustom, func(context.Context, *flow) (*flow, error) { return nil, boom }).
		AddNode("end", NodeTypeEnd, step("end", 0)).
		AddEdge("start", "fail").
		AddEdge("fail", "end").
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(context.Background(), &flow{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestExecuteHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g, _ := NewBuilder[*flow]().
		AddNode("start", NodeTypeStart, nil).
		AddNode("cancel", NodeTypeCustom, func(_ context.Context, f *flow) (*flow, error) { cancel(); return f, nil }).
		AddNode("after", NodeTypeCustom, step("after", 1)).
		AddNode("end", NodeTypeEnd, nil).
		AddEdge("start", "cancel").
		AddEdge("cancel", "after").
		AddEdge("after", "end").
		Build()

	got, err := g.Execute(ctx, &flow{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got.n != 0 {
		t.Error("node after cancellation must not run")
	}
}

func TestExecuteDetectsLoops(t *testing.T) {
	g, err := NewBuilder[*flow]().
		AddNode("start", NodeTypeStart, nil).
		AddNode("spin", NodeTypeCustom, step("spin", 1)).
		AddNode("end", NodeTypeEnd, nil).
		AddEdge("start", "spin").
		AddEdge("spin", "spin").
		SetMaxVisits(3).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.Execute(context.Background(), &flow{}); err == nil || !strings.Contains(err.Error(), "infinite loop") {
		t.Fatalf("expected loop detection, got %v", err)
	}
}

func TestBuildValidatesEdges(t *testing.T) {
	_, err := NewBuilder[*flow]().
		AddNode("start", NodeTypeStart, nil).
		AddNode("end", NodeTypeEnd, nil).
		AddEdge("start", "missing").
		Build()
	if err == nil {
		t.Fatal("expected unknown node error")
	}
}

func TestObserverSeesEveryNode(t *testing.T) {
	var seen []string
	g, _ := NewBuilder[*flow]().
		AddNode("start", NodeTypeStart, nil).
		AddNode("a", NodeTypeCustom, step("a", 1)).
		AddNode("end", NodeTypeEnd, nil).
		AddEdge("start", "a").
		AddEdge("a", "end").
		Observe(func(n string) { seen = append(seen, n) }).
		Build()
	if _, err := g.Execute(context.Background(), &flow{}); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(seen, []string{"start", "a", "end"}) {
		t.Errorf("seen = %v", seen)
	}
}

package graph

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/hupe1980/neobank/core"
)

func goTo(next string) NodeFunc {
	return func(context.Context, *State) (string, error) { return next, nil }
}

func finishNode(ctx context.Context, s *State) (string, error) {
	s.Set("answer", "done")
	return End, nil
}

func TestBuilder_Validation(t *testing.T) {
	_, err := NewBuilder().Build()
	assert.Error(t, err)

	_, err = NewBuilder().AddNode("a", goTo(End)).Build()
	assert.Error(t, err, "finish node required")

	_, err = NewBuilder().AddNode("a", goTo(End)).SetFinish("missing").Build()
	assert.Error(t, err)

	_, err = NewBuilder().AddNode("a", nil).SetFinish("a").Build()
	assert.Error(t, err)

	g, err := NewBuilder().AddNode("a", goTo(End)).AddNode("b", goTo(End)).SetFinish("b").Build()
	require.NoError(t, err)
	assert.Equal(t, "a", g.Entry())
	assert.Equal(t, "b", g.Finish())
	assert.Equal(t, []string{"a", "b"}, g.Nodes())
}

func TestRun_CompletesAndCountsTransitions(t *testing.T) {
	g, err := NewBuilder().
		AddNode("plan", goTo("act")).
		AddNode("act", goTo("finish")).
		AddNode("finish", finishNode).
		SetFinish("finish").
		Build()
	require.NoError(t, err)

	var seen []Transition

	state := NewState(map[string]any{"question": "q"})
	out := g.Run(context.Background(), state, func(o *RunOptions) {
		o.OnTransition = func(t Transition) { seen = append(seen, t) }
	})

	require.NoError(t, out.Err)
	assert.Equal(t, core.StatusCompleted, out.Status)
	assert.Equal(t, "finish", out.LastNode)
	assert.Equal(t, 2, state.Iteration())
	assert.Equal(t, "done", state.GetString("answer"))
	assert.Equal(t, []Transition{{"plan", "act", 1}, {"act", "finish", 2}}, seen)
	assert.False(t, state.Forced())
}

func TestRun_IterationCountIncreasesByOnePerTransition(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ceiling := rapid.IntRange(1, 25).Draw(rt, "ceiling")
		loops := rapid.IntRange(0, 30).Draw(rt, "loops")

		g, err := NewBuilder().
			AddNode("a", func(_ context.Context, s *State) (string, error) {
				n, _ := s.Get("visits")
				v, _ := n.(int)
				s.Set("visits", v+1)

				if v >= loops {
					return "finish", nil
				}

				return "b", nil
			}).
			AddNode("b", goTo("a")).
			AddNode("finish", finishNode).
			SetFinish("finish").
			Build()
		if err != nil {
			rt.Fatal(err)
		}

		last := 0
		state := NewState(nil)
		out := g.Run(context.Background(), state, func(o *RunOptions) {
			o.MaxIterations = ceiling
			o.OnTransition = func(tr Transition) {
				if tr.Iteration != last+1 {
					rt.Fatalf("iteration jumped from %d to %d", last, tr.Iteration)
				}
				last = tr.Iteration
			}
		})

		if state.Iteration() != last {
			rt.Fatalf("state iteration %d != last observed %d", state.Iteration(), last)
		}

		if state.Iteration() > ceiling {
			rt.Fatalf("iteration %d exceeds ceiling %d", state.Iteration(), ceiling)
		}

		if out.Status != core.StatusCompleted && out.Status != core.StatusExhausted {
			rt.Fatalf("unexpected status %s", out.Status)
		}

		if state.GetString("answer") != "done" {
			rt.Fatalf("finish node did not run")
		}
	})
}

func TestRun_CeilingForcesFinish(t *testing.T) {
	g, err := NewBuilder().
		AddNode("plan", goTo("reflect")).
		AddNode("reflect", goTo("plan")). // never satisfied
		AddNode("finish", finishNode).
		SetFinish("finish").
		Build()
	require.NoError(t, err)

	state := NewState(nil)
	out := g.Run(context.Background(), state, func(o *RunOptions) { o.MaxIterations = 5 })

	require.NoError(t, out.Err)
	assert.Equal(t, core.StatusExhausted, out.Status)
	assert.Equal(t, "finish", out.LastNode)
	assert.Equal(t, 5, state.Iteration())
	assert.True(t, state.Forced())
	assert.Equal(t, "done", state.GetString("answer"))
}

func TestRun_NoNodeRunsOnceCeilingIsReached(t *testing.T) {
	ran := map[string]int{}
	visit := func(name, next string) NodeFunc {
		return func(context.Context, *State) (string, error) {
			ran[name]++
			return next, nil
		}
	}

	g, err := NewBuilder().
		AddNode("plan", visit("plan", "act")).
		AddNode("act", visit("act", "observe")).
		AddNode("observe", visit("observe", "finish")).
		AddNode("finish", finishNode).
		SetFinish("finish").
		Build()
	require.NoError(t, err)

	state := NewState(nil)
	out := g.Run(context.Background(), state, func(o *RunOptions) { o.MaxIterations = 1 })

	require.NoError(t, out.Err)
	assert.Equal(t, core.StatusExhausted, out.Status)
	assert.Equal(t, "finish", out.LastNode)
	assert.Equal(t, 1, state.Iteration())
	assert.Equal(t, map[string]int{"plan": 1}, ran, "act was entered at the ceiling and must not run")
	assert.Equal(t, "done", state.GetString("answer"))
}

func TestRun_TransitionIntoFinishAtCeilingCompletes(t *testing.T) {
	g, err := NewBuilder().
		AddNode("plan", goTo("reflect")).
		AddNode("reflect", goTo("finish")).
		AddNode("finish", finishNode).
		SetFinish("finish").
		Build()
	require.NoError(t, err)

	state := NewState(nil)
	out := g.Run(context.Background(), state, func(o *RunOptions) { o.MaxIterations = 2 })

	require.NoError(t, out.Err)
	assert.Equal(t, core.StatusCompleted, out.Status)
	assert.Equal(t, 2, state.Iteration())
	assert.False(t, state.Forced())
}

func TestRun_FinishRoutingOnwardAtCeilingIsForced(t *testing.T) {
	finishes := 0

	g, err := NewBuilder().
		AddNode("a", goTo("finish")).
		AddNode("finish", func(context.Context, *State) (string, error) {
			finishes++
			return "a", nil
		}).
		SetFinish("finish").
		Build()
	require.NoError(t, err)

	state := NewState(nil)
	out := g.Run(context.Background(), state, func(o *RunOptions) { o.MaxIterations = 1 })

	assert.Equal(t, core.StatusExhausted, out.Status)
	assert.Equal(t, 1, state.Iteration())
	assert.Equal(t, 2, finishes)
}

func TestRun_DeadlineForcesFinish(t *testing.T) {
	g, err := NewBuilder().
		AddNode("slow", func(ctx context.Context, _ *State) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}).
		AddNode("finish", finishNode).
		SetFinish("finish").
		Build()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	state := NewState(nil)
	out := g.Run(ctx, state)

	require.NoError(t, out.Err)
	assert.Equal(t, core.StatusExhausted, out.Status)
	assert.Equal(t, "done", state.GetString("answer"))
}

func TestRun_CancellationFails(t *testing.T) {
	g, err := NewBuilder().AddNode("finish", finishNode).SetFinish("finish").Build()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := g.Run(ctx, NewState(nil))
	assert.Equal(t, core.StatusFailed, out.Status)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestRun_NodeErrorsBecomeAIAgentErrors(t *testing.T) {
	cases := map[string]NodeFunc{
		"error": func(context.Context, *State) (string, error) { return "", errors.New("boom") },
		"panic": func(context.Context, *State) (string, error) { panic("kaboom") },
		"route": goTo("nowhere"),
	}

	for name, node := range cases {
		t.Run(name, func(t *testing.T) {
			g, err := NewBuilder().
				AddNode("act", node).
				AddNode("finish", finishNode).
				SetFinish("finish").
				Build()
			require.NoError(t, err)

			state := NewState(map[string]any{"plan": "secret plan", "account_id": "acc-1"})
			out := g.Run(context.Background(), state)

			assert.Equal(t, core.StatusFailed, out.Status)
			require.Error(t, out.Err)
			assert.ErrorIs(t, out.Err, core.ErrAIAgent)

			var cerr *core.Error
			require.True(t, errors.As(out.Err, &cerr))

			node, _ := cerr.Detail(core.DetailCurrentNode)
			assert.Equal(t, "act", node)

			keys, _ := cerr.Detail(core.DetailStateKeys)
			assert.Equal(t, []string{"account_id", IterationKey, "plan"}, keys)
			assert.NotContains(t, cerr.Error(), "secret plan")
		})
	}
}

func TestState_ReservedIterationKey(t *testing.T) {
	s := NewState(map[string]any{IterationKey: 99})
	s.Set(IterationKey, 42)

	v, ok := s.Get(IterationKey)
	require.True(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, 0, s.Snapshot()[IterationKey])

	s.Set("k", "v")
	s.Delete("k")
	_, ok = s.Get("k")
	assert.False(t, ok)
}

type countingObserver struct{ nodes []string }

func (o *countingObserver) ObserveGraphTransition(node string) { o.nodes = append(o.nodes, node) }

func TestRun_Observer(t *testing.T) {
	g, err := NewBuilder().AddNode("a", goTo("finish")).AddNode("finish", finishNode).SetFinish("finish").Build()
	require.NoError(t, err)

	obs := &countingObserver{}
	g.Run(context.Background(), NewState(nil), func(o *RunOptions) { o.Observer = obs })

	assert.Equal(t, []string{"finish"}, obs.nodes)
}

package workflow

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-ai/finsight/internal/expressions"
	"github.com/finsight-ai/finsight/internal/tools"
	"github.com/finsight-ai/finsight/pkg/schema"
)

// testBuildEnv registers a fake adapter for every built-in capability name.
// reviewQuality scripts the review verdicts in call order; the last value
// repeats.
func testBuildEnv(t *testing.T, reviewQuality ...bool) BuildEnv {
	t.Helper()

	registry := tools.NewRegistry()
	for _, name := range []string{"plan", "collect", "parse", "retrieve", "summarize", "respond"} {
		name := name
		require.NoError(t, registry.Register(staticAdapter(name, map[string]any{"from": name})))
	}

	var calls atomic.Int64
	require.NoError(t, registry.Register(&fakeAdapter{name: "review",
		fn: func(context.Context, tools.Input) (tools.Output, error) {
			n := int(calls.Add(1)) - 1
			quality := true
			if len(reviewQuality) > 0 {
				if n >= len(reviewQuality) {
					n = len(reviewQuality) - 1
				}
				quality = reviewQuality[n]
			}
			return tools.Output{Data: map[string]any{"quality": quality}}, nil
		}}))

	return BuildEnv{Tools: registry, Expr: expressions.NewExprEngine()}
}

// --- Registry ---

func TestTemplateRegistry_Builtins(t *testing.T) {
	r := NewTemplateRegistry()
	assert.Equal(t, []string{"basic", "deep_analysis", "iterative_improvement"}, r.Names())

	tpl, err := r.Get("basic")
	require.NoError(t, err)
	assert.Equal(t, 3, tpl.Defaults.MaxIterations)
	assert.False(t, tpl.Defaults.EnableMemory)

	tpl, err = r.Get("deep_analysis")
	require.NoError(t, err)
	assert.Equal(t, 5, tpl.Defaults.MaxIterations)
	assert.Equal(t, 20, tpl.Defaults.MemoryWindow)
}

func TestTemplateRegistry_UnknownTemplate(t *testing.T) {
	_, err := NewTemplateRegistry().Get("nope")
	assertCode(t, err, schema.ErrCodeNotFound)
}

func TestTemplateRegistry_DuplicateRegistration(t *testing.T) {
	r := NewTemplateRegistry()
	err := r.Register(Template{Name: "basic", Build: buildBasic})
	assertCode(t, err, schema.ErrCodeConflict)
}

func TestTemplateRegistry_CustomTemplate(t *testing.T) {
	r := NewTemplateRegistry()
	require.NoError(t, r.Register(Template{
		Name:     "mine",
		Defaults: Defaults{MaxIterations: 1},
		Build:    buildBasic,
	}))
	assert.Contains(t, r.Names(), "mine")
}

// --- Built-in topologies ---

func TestBasicTemplate_RunsLinearly(t *testing.T) {
	tpl, err := NewTemplateRegistry().Get("basic")
	require.NoError(t, err)

	g, err := tpl.Build(testBuildEnv(t))
	require.NoError(t, err)
	assert.Equal(t, "plan", g.Entry())

	st, err := testEngine().Run(context.Background(), g, testState(), RunConfig{MaxIterations: 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"from": "summarize"}, st.Result)
	assert.Equal(t, 0, st.IterationCount)
}

func TestIterativeTemplate_ReplansOnRejection(t *testing.T) {
	tpl, err := NewTemplateRegistry().Get("iterative_improvement")
	require.NoError(t, err)

	// First review rejects, second accepts. Every node on the second lap is
	// a revisit, so the budget must cover the whole lap.
	g, err := tpl.Build(testBuildEnv(t, false, true))
	require.NoError(t, err)
	assert.Equal(t, "respond", g.Fallback())

	st, err := testEngine().Run(context.Background(), g, testState(), RunConfig{MaxIterations: 8})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"from": "respond"}, st.Result)
	assert.Greater(t, st.IterationCount, 0)
}

func TestIterativeTemplate_FallsBackWhenNeverAccepted(t *testing.T) {
	tpl, err := NewTemplateRegistry().Get("iterative_improvement")
	require.NoError(t, err)

	g, err := tpl.Build(testBuildEnv(t, false))
	require.NoError(t, err)

	st, err := testEngine().Run(context.Background(), g, testState(), RunConfig{MaxIterations: 2})
	require.NoError(t, err)
	// The loop never converges; the engine forces the respond fallback.
	assert.Equal(t, map[string]any{"from": "respond"}, st.Result)
	assert.Equal(t, 2, st.IterationCount)
}

func TestDeepAnalysisTemplate_IncludesRetrieval(t *testing.T) {
	tpl, err := NewTemplateRegistry().Get("deep_analysis")
	require.NoError(t, err)

	g, err := tpl.Build(testBuildEnv(t, true))
	require.NoError(t, err)

	st, err := testEngine().Run(context.Background(), g, testState(), RunConfig{MaxIterations: 5})
	require.NoError(t, err)

	visited := make([]string, 0, len(st.Outputs()))
	for _, o := range st.Outputs() {
		visited = append(visited, o.Node)
	}
	assert.Contains(t, visited, "retrieve")
	assert.Equal(t, map[string]any{"from": "respond"}, st.Result)
}

// --- Source wiring ---

// Configured source URLs must reach the collect capability as its "sources"
// parameter in every built-in template.
func TestTemplates_ConfiguredSourcesReachCollect(t *testing.T) {
	for _, name := range []string{"basic", "iterative_improvement", "deep_analysis"} {
		t.Run(name, func(t *testing.T) {
			env := testBuildEnv(t)
			env.Sources = []string{"http://feed-a", "http://feed-b"}

			var seen map[string]any
			env.Tools = replaceAdapter(t, env.Tools, &fakeAdapter{name: "collect",
				fn: func(_ context.Context, in tools.Input) (tools.Output, error) {
					seen = in.Params
					return tools.Output{Data: map[string]any{"from": "collect"}}, nil
				}})

			tpl, err := NewTemplateRegistry().Get(name)
			require.NoError(t, err)
			g, err := tpl.Build(env)
			require.NoError(t, err)

			_, err = testEngine().Run(context.Background(), g, testState(), RunConfig{MaxIterations: 5})
			require.NoError(t, err)
			assert.Equal(t, []any{"http://feed-a", "http://feed-b"}, seen["sources"])
		})
	}
}

// With no configured sources and no planned URLs the shipped collect adapter
// fails routably, and deep_analysis degrades to indexed retrieval.
func TestDeepAnalysisTemplate_DegradesToRetrievalWithoutSources(t *testing.T) {
	env := testBuildEnv(t, true)
	env.Tools = replaceAdapter(t, env.Tools, &tools.CollectAdapter{})

	tpl, err := NewTemplateRegistry().Get("deep_analysis")
	require.NoError(t, err)
	g, err := tpl.Build(env)
	require.NoError(t, err)

	st, err := testEngine().Run(context.Background(), g, testState(), RunConfig{MaxIterations: 5})
	require.NoError(t, err)

	var collectFailed, retrieved bool
	for _, o := range st.Outputs() {
		if o.Node == "collect" && o.Failed {
			collectFailed = true
		}
		if o.Node == "retrieve" && !o.Failed {
			retrieved = true
		}
	}
	assert.True(t, collectFailed)
	assert.True(t, retrieved)
	assert.Equal(t, map[string]any{"from": "respond"}, st.Result)
}

// replaceAdapter rebuilds the registry with one capability swapped out.
func replaceAdapter(t *testing.T, reg *tools.Registry, replacement tools.Adapter) *tools.Registry {
	t.Helper()
	out := tools.NewRegistry()
	require.NoError(t, out.Register(replacement))
	for _, name := range reg.Names() {
		if name == replacement.Name() {
			continue
		}
		a, err := reg.Get(name)
		require.NoError(t, err)
		require.NoError(t, out.Register(a))
	}
	return out
}

func TestTemplate_UnknownCapabilityFailsBuild(t *testing.T) {
	tpl, err := NewTemplateRegistry().Get("basic")
	require.NoError(t, err)

	_, err = tpl.Build(BuildEnv{Tools: tools.NewRegistry(), Expr: expressions.NewExprEngine()})
	assertCode(t, err, schema.ErrCodeNotFound)
}

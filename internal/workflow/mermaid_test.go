package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMermaid_RendersNodesAndEdges(t *testing.T) {
	g := NewGraph("basic")
	mustAddNode(t, g, Node{Name: "plan", Capability: staticAdapter("plan", nil)})
	mustAddNode(t, g, Node{Name: "collect", Capability: staticAdapter("collect", nil)})
	require.NoError(t, g.AddEdge("plan", "collect"))
	require.NoError(t, g.Validate())

	out := g.Mermaid()
	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "%% basic")
	assert.Contains(t, out, `plan["plan"]`)
	assert.Contains(t, out, "plan --> collect")
	assert.Contains(t, out, "class plan entry")
}

func TestMermaid_MarksErrorAndPredicateEdges(t *testing.T) {
	g := NewGraph("loop")
	for _, n := range []string{"summarize", "review", "respond"} {
		mustAddNode(t, g, Node{Name: n, Capability: staticAdapter(n, nil)})
	}
	g.SetFallback("respond")
	require.NoError(t, g.AddEdge("summarize", "review"))
	require.NoError(t, g.AddEdge("review", "summarize",
		WithPredicate(PredicateFunc(func(map[string]any) bool { return false }))))
	require.NoError(t, g.AddEdge("review", "respond"))
	require.NoError(t, g.AddEdge("summarize", "respond", OnError()))
	require.NoError(t, g.Validate())

	out := g.Mermaid()
	assert.Contains(t, out, "review -->|if| summarize")
	assert.Contains(t, out, "summarize -.->|on error| respond")
	assert.Contains(t, out, "class respond fallback")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "plan_v2", mermaidSafeID("plan-v2"))
	assert.Equal(t, "node_1", mermaidSafeID("node 1"))
}

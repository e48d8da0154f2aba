package workflow

import (
	"fmt"
	"strings"
)

// Mermaid renders the graph as a Mermaid flowchart, for docs and the
// templates CLI listing. Error edges are dashed; the entry and fallback
// nodes carry distinct styles.
func (g *Graph) Mermaid() string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if g.name != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", g.name)
	}

	for _, name := range g.order {
		fmt.Fprintf(&b, "    %s[\"%s\"]\n", mermaidSafeID(name), name)
	}

	for _, from := range g.order {
		for _, e := range g.edges[from] {
			arrow := "-->"
			if e.OnError {
				arrow = "-.->|on error|"
			} else if e.Pred != nil {
				arrow = "-->|if|"
			}
			fmt.Fprintf(&b, "    %s %s %s\n", mermaidSafeID(e.From), arrow, mermaidSafeID(e.To))
		}
	}

	b.WriteString("\n")
	b.WriteString("    classDef entry fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef fallback fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	if g.entry != "" {
		fmt.Fprintf(&b, "    class %s entry\n", mermaidSafeID(g.entry))
	}
	if g.fallback != "" && g.fallback != g.entry {
		fmt.Fprintf(&b, "    class %s fallback\n", mermaidSafeID(g.fallback))
	}
	return b.String()
}

// mermaidSafeID strips characters Mermaid treats as syntax from node IDs.
func mermaidSafeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

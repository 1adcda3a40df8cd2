package pipeline

import (
	"fmt"
	"strings"
)

// Render generates a Mermaid flowchart of the pipeline with one subgraph
// per level, so the parallel execution plan reads left to right.
func Render(p *Pipeline) (string, error) {
	levels, err := p.NodesByLevel()
	if err != nil {
		return "", err
	}

	ids := make(map[NodeKey]string, p.Len())
	for i, n := range p.Nodes() {
		ids[n.Key()] = fmt.Sprintf("n%d", i)
	}

	var b strings.Builder
	b.WriteString("graph LR\n")
	for lvl, bucket := range levels {
		fmt.Fprintf(&b, "    subgraph level_%d [Level %d]\n", lvl, lvl)
		for _, n := range bucket {
			fmt.Fprintf(&b, "        %s%s\n", ids[n.Key()], nodeShape(n))
		}
		b.WriteString("    end\n")
	}
	for _, e := range p.Edges() {
		fmt.Fprintf(&b, "    %s --> %s\n", ids[e.From.Key()], ids[e.To.Key()])
	}
	return b.String(), nil
}

// nodeShape draws OR nodes as boxes and AND merge nodes as hexagons.
func nodeShape(n Node) string {
	label := escapeLabel(n.Name())
	if n.InputType() == InputAND {
		return `{{"` + label + `"}}`
	}
	return `["` + label + `"]`
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, "#quot;")
}

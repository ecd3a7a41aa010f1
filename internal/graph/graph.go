// Package graph generates DOT and Mermaid resource graphs from synthesized
// templates.
package graph

import (
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/emicklei/dot"

	wetwire "github.com/lex00/wetwire-crm-go"
)

// Format specifies the output format for the graph.
type Format string

const (
	// FormatDOT outputs Graphviz DOT format.
	FormatDOT Format = "dot"
	// FormatMermaid outputs Mermaid format for GitHub/markdown rendering.
	FormatMermaid Format = "mermaid"
)

// EdgeKind classifies how one resource refers to another.
type EdgeKind int

// Edge kinds, weakest first. When a resource refers to another in several
// ways the strongest kind is kept.
const (
	EdgeDependsOn EdgeKind = iota
	EdgeRef
	EdgeGetAtt
	EdgeEvent
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeRef:
		return "ref"
	case EdgeGetAtt:
		return "getatt"
	case EdgeEvent:
		return "event"
	default:
		return "dependsOn"
	}
}

// Edge points from a resource to a resource it needs.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

// Generator creates resource graphs.
type Generator struct {
	// Format specifies the output format (dot or mermaid). Defaults to dot.
	Format Format

	// ClusterByType groups resources by AWS service.
	ClusterByType bool
}

// Generate creates a graph of t and writes it to w.
func (g *Generator) Generate(t *wetwire.Template, w io.Writer) error {
	graph := g.buildGraph(t)

	var output string
	if g.Format == FormatMermaid {
		output = dot.MermaidGraph(graph, dot.MermaidTopToBottom)
	} else {
		output = graph.String()
	}

	_, err := w.Write([]byte(output))
	return err
}

// GenerateString is a convenience method that returns the graph as a string.
func (g *Generator) GenerateString(t *wetwire.Template) (string, error) {
	var sb strings.Builder
	if err := g.Generate(t, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *Generator) buildGraph(t *wetwire.Template) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")

	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	graph.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})

	names := resourceNames(t)
	if g.ClusterByType {
		addClusteredNodes(graph, t, names)
	} else {
		for _, name := range names {
			graph.Node(name).Label(name + "\\n[" + t.Resources[name].Type + "]")
		}
	}

	for _, edge := range Edges(t) {
		e := graph.Edge(graph.Node(edge.From), graph.Node(edge.To))
		switch edge.Kind {
		case EdgeGetAtt:
			e.Attr("color", "blue")
		case EdgeEvent:
			e.Attr("style", "dashed")
			e.Label("event")
		}
	}
	return graph
}

// addClusteredNodes groups nodes by service when a service has more than
// one resource.
func addClusteredNodes(graph *dot.Graph, t *wetwire.Template, names []string) {
	byService := make(map[string][]string)
	var services []string
	for _, name := range names {
		service := extractService(t.Resources[name].Type)
		if _, ok := byService[service]; !ok {
			services = append(services, service)
		}
		byService[service] = append(byService[service], name)
	}
	sort.Strings(services)

	for _, service := range services {
		members := byService[service]
		parent := graph
		if len(members) > 1 {
			parent = graph.Subgraph("cluster_"+service, dot.ClusterOption{})
			parent.Attr("label", service)
			parent.Attr("style", "rounded")
			parent.Attr("bgcolor", "lightyellow")
		}
		for _, name := range members {
			parent.Node(name).Label(name + "\\n[" + t.Resources[name].Type + "]")
		}
	}
}

// Edges returns the references between resources of t, sorted by source
// and target. References to names that are not resources of t are
// ignored.
func Edges(t *wetwire.Template) []Edge {
	return collect(t, false)
}

// References returns every reference made by the resources of t, including
// references to names t does not define. Pseudo parameters are skipped.
func References(t *wetwire.Template) []Edge {
	return collect(t, true)
}

func collect(t *wetwire.Template, keepUnknown bool) []Edge {
	kinds := make(map[[2]string]EdgeKind)
	add := func(from, to string, kind EdgeKind) {
		if from == to || strings.HasPrefix(to, "AWS::") {
			return
		}
		if _, ok := t.Resources[to]; !ok && !keepUnknown {
			return
		}
		key := [2]string{from, to}
		if current, ok := kinds[key]; !ok || kind > current {
			kinds[key] = kind
		}
	}

	for name, res := range t.Resources {
		for _, dep := range res.DependsOn {
			add(name, dep, EdgeDependsOn)
		}
		for key, value := range res.Properties {
			inEvents := key == "Events" && strings.HasPrefix(res.Type, "AWS::Serverless::")
			walk(value, func(target string, kind EdgeKind) {
				if inEvents {
					kind = EdgeEvent
				}
				add(name, target, kind)
			})
		}
	}

	edges := make([]Edge, 0, len(kinds))
	for key, kind := range kinds {
		edges = append(edges, Edge{From: key[0], To: key[1], Kind: kind})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

var subVar = regexp.MustCompile(`\$\{([^}!][^}]*)\}`)

// walk reports every resource referenced from v through Ref, Fn::GetAtt
// or Fn::Sub.
func walk(v any, visit func(target string, kind EdgeKind)) {
	switch val := v.(type) {
	case map[string]any:
		if ref, ok := val["Ref"].(string); ok && len(val) == 1 {
			visit(ref, EdgeRef)
			return
		}
		if getAtt, ok := val["Fn::GetAtt"]; ok && len(val) == 1 {
			if target := getAttTarget(getAtt); target != "" {
				visit(target, EdgeGetAtt)
			}
			return
		}
		if sub, ok := val["Fn::Sub"]; ok && len(val) == 1 {
			walkSub(sub, visit)
			return
		}
		for _, child := range val {
			walk(child, visit)
		}
	case []any:
		for _, child := range val {
			walk(child, visit)
		}
	}
}

func getAttTarget(v any) string {
	switch val := v.(type) {
	case []any:
		if len(val) > 0 {
			s, _ := val[0].(string)
			return s
		}
	case string:
		name, _, _ := strings.Cut(val, ".")
		return name
	}
	return ""
}

func walkSub(v any, visit func(string, EdgeKind)) {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case []any:
		if len(val) > 0 {
			s, _ = val[0].(string)
		}
	}
	for _, m := range subVar.FindAllStringSubmatch(s, -1) {
		name, attr, hasAttr := strings.Cut(m[1], ".")
		if strings.HasPrefix(name, "AWS::") {
			continue
		}
		if hasAttr && attr != "" {
			visit(name, EdgeGetAtt)
		} else {
			visit(name, EdgeRef)
		}
	}
}

func resourceNames(t *wetwire.Template) []string {
	names := make([]string, 0, len(t.Resources))
	for name := range t.Resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// extractService extracts the service from a resource type.
// e.g., "AWS::S3::Bucket" -> "S3"
func extractService(resourceType string) string {
	parts := strings.Split(resourceType, "::")
	if len(parts) == 3 {
		return parts[1]
	}
	return "Other"
}

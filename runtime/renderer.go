package runtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/lightartw/textanalyze/types"
)

// Render draws the pipeline in DOT. When result is given, executed nodes are
// filled by the status of their last execution.
func Render(p types.Pipeline, result *types.RunResult) (string, error) {
	if p == nil {
		return "", errors.BadRequestf("pipeline is nil")
	}
	renderer := newPipelineRenderer()
	return renderer.generateDOT(p, result)
}

// Describe is the plain text view of the routing table.
func Describe(p types.Pipeline) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "Pipeline: %s\n", p.Name())
	fmt.Fprintf(sb, "Start: %s\n", p.Start())
	sb.WriteString(strings.Repeat("-", 40) + "\n")
	for _, name := range p.NodeNames() {
		spec, _ := p.Node(name)
		fmt.Fprintf(sb, "  [%s]", name)
		if spec.Description != "" {
			fmt.Fprintf(sb, " %s", spec.Description)
		}
		sb.WriteString("\n")

		switch {
		case spec.BranchField != "":
			fmt.Fprintf(sb, "    if %s: -> %s\n", spec.BranchField, orEnd(spec.BranchTrue))
			fmt.Fprintf(sb, "    else: -> %s\n", orEnd(spec.BranchFalse))
		case spec.Next != "":
			fmt.Fprintf(sb, "    -> %s\n", spec.Next)
		default:
			sb.WriteString("    -> END\n")
		}
		if spec.Retry > 0 {
			fmt.Fprintf(sb, "    retry: %d\n", spec.Retry)
		}
	}
	return sb.String()
}

func orEnd(name string) string {
	if name == "" {
		return "END"
	}
	return name
}

func newPipelineRenderer() *pipelineRenderer {
	return &pipelineRenderer{nil, &strings.Builder{}}
}

type pipelineRenderer struct {
	records map[string]*types.ExecutionRecord
	sb      *strings.Builder
}

func (d *pipelineRenderer) setRecords(result *types.RunResult) {
	d.records = make(map[string]*types.ExecutionRecord)
	if result == nil {
		return
	}
	for _, record := range result.Records {
		d.records[record.Node] = record
	}
}

func (d *pipelineRenderer) generateDOT(p types.Pipeline, result *types.RunResult) (string, error) {
	d.setRecords(result)

	d.write("digraph D {")
	d.write("label=%s", quoteString(p.Name()))
	if start := p.Start(); start != "" {
		d.write("__start [label=\"start\" shape=\"point\"]")
		d.write("__start -> %s", idString(start))
	}
	for _, name := range p.NodeNames() {
		spec, _ := p.Node(name)
		if spec.BranchField != "" {
			d.drawBranch(spec)
		} else {
			d.drawNode(spec)
		}
	}
	d.write("}")
	return d.sb.String(), nil
}

func packToComment(r *types.ExecutionRecord) string {
	s, _ := json.Marshal(r)
	return formatNL(addSlashes(string(s)))
}

func (d *pipelineRenderer) calcAttr(name string) string {
	record, exists := d.records[name]
	if !exists {
		return ""
	}

	color := ""
	switch record.Status {
	case types.Success:
		color = "green"
	case types.Skipped:
		color = "grey"
	case types.Failed:
		color = "red"
	default:
		color = "yellow"
	}
	return fmt.Sprintf(" style=\"filled\" color=\"%s\" comment=\"%s\"", color, packToComment(record))
}

func (d *pipelineRenderer) drawBranch(spec *types.NodeSpec) {
	attr := d.calcAttr(spec.Name)
	d.write("%s [label=%s shape=\"diamond\"%s]", idString(spec.Name), quoteString(spec.Name), attr)
	if spec.BranchTrue != "" {
		d.write("%s -> %s [label=%s]", idString(spec.Name), idString(spec.BranchTrue), quoteString(spec.BranchField))
	}
	if spec.BranchFalse != "" {
		d.write("%s -> %s [label=%s]", idString(spec.Name), idString(spec.BranchFalse), quoteString("!"+spec.BranchField))
	}
}

func (d *pipelineRenderer) drawNode(spec *types.NodeSpec) {
	attr := d.calcAttr(spec.Name)
	d.write("%s [label=%s shape=\"record\"%s]", idString(spec.Name), quoteString(spec.Name), attr)
	if spec.Next != "" {
		d.write("%s -> %s", idString(spec.Name), idString(spec.Next))
	}
}

func (d *pipelineRenderer) write(format string, s ...any) {
	d.sb.WriteString(fmt.Sprintf(format+"\n", s...))
}

var (
	slashesToken = []string{"\\", "\"", "'", " "}
)

func addSlashes(s string) string {
	for _, token := range slashesToken {
		s = strings.ReplaceAll(s, token, "\\"+token)
	}
	return s
}

func formatNL(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func quoteString(s string) string {
	return "\"" + strings.ReplaceAll(s, "\"", "\\\"") + "\""
}

var idleChars = []string{" ", "'", "\"", "(", ")", "*", "&", "^", "%", "$", "#", "@", "!", "?", "<", ">", "[", "]", "{", "}", ".", "-"}

func idString(s string) string {
	for _, ch := range idleChars {
		s = strings.ReplaceAll(s, ch, "_")
	}
	return s
}

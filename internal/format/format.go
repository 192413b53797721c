// Package format renders bench results for the terminal.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mwiater/cgbench/internal/callgrind"
	"github.com/mwiater/cgbench/internal/summary"
	"github.com/mwiater/cgbench/internal/tool"
	"github.com/mwiater/cgbench/internal/util"
)

const (
	descWidth   = 28
	newWidth    = 12
	oldWidth    = 16
	noChange    = "No change"
	notAvail    = "N/A"
	unknownDiff = "*********"
)

// OutputFormat of the bench results on stdout.
type OutputFormat int

const (
	OutputDefault OutputFormat = iota
	OutputJSON
	OutputPrettyJSON
)

// ParseOutputFormat accepts "default", "json" and "pretty-json".
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return OutputDefault, nil
	case "json":
		return OutputJSON, nil
	case "pretty-json", "pretty_json":
		return OutputPrettyJSON, nil
	default:
		return OutputDefault, fmt.Errorf("invalid output format %q: expected default, json or pretty-json", s)
	}
}

func (f OutputFormat) String() string {
	switch f {
	case OutputJSON:
		return "json"
	case OutputPrettyJSON:
		return "pretty-json"
	default:
		return "default"
	}
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))

	increase = color.New(color.FgRed, color.Bold).SprintFunc()
	decrease = color.New(color.FgGreen, color.Bold).SprintFunc()
	bold     = color.New(color.Bold).SprintFunc()
	faint    = color.New(color.Faint).SprintFunc()
	alert    = color.New(color.FgRed, color.Bold).SprintFunc()
)

// Printer writes bench results to w.
type Printer struct {
	W      io.Writer
	Format OutputFormat
}

// NewPrinter returns a printer for w.
func NewPrinter(w io.Writer, format OutputFormat) *Printer {
	return &Printer{W: w, Format: format}
}

// Bench prints the result of one bench. Machine readable formats print the
// summary only.
func (p *Printer) Bench(s *summary.BenchmarkSummary, truncate int) error {
	switch p.Format {
	case OutputJSON, OutputPrettyJSON:
		var data []byte
		var err error
		if p.Format == OutputPrettyJSON {
			data, err = json.MarshalIndent(s, "", "  ")
		} else {
			data, err = json.Marshal(s)
		}
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		_, err = fmt.Fprintln(p.W, string(data))
		return err
	}

	p.Header(s.ModulePath, s.ID, s.Details, truncate)
	if s.Callgrind != nil {
		p.CostsSummary(s.Callgrind.Summary, s.Baselines)
		p.Regressions(s.Callgrind.Regressions)
	}
	for _, t := range s.Tools {
		p.ToolSummary(t)
	}
	return nil
}

// Header prints "<module path> <id>:<details>". Details longer than truncate
// runes are shortened, truncate 0 disables shortening.
func (p *Printer) Header(modulePath, id, details string, truncate int) {
	if p.Format != OutputDefault {
		return
	}
	line := headerStyle.Render(modulePath)
	if id != "" {
		line += " " + bold(id)
	}
	if id != "" || details != "" {
		line += ":" + truncateDescription(details, truncate)
	}
	fmt.Fprintln(p.W, line)
}

func truncateDescription(details string, truncate int) string {
	details = strings.ReplaceAll(details, "\n", " ")
	if truncate <= 0 {
		return details
	}
	return util.TruncateRunes(details, truncate)
}

// CostsSummary prints one line per event. Events without an old count show
// the new count only.
func (p *Printer) CostsSummary(cs callgrind.CostsSummary, baselines summary.Baselines) {
	if p.Format != OutputDefault {
		return
	}
	if baselines.Current != "" || baselines.Base != "" {
		fmt.Fprintf(p.W, "  %-*s%*s|%s\n", descWidth, "Baselines:", newWidth, baselines.Current, baselines.Base)
	}
	for _, diff := range cs.Events {
		p.eventLine(diff)
	}
}

func (p *Printer) eventLine(d callgrind.EventDiff) {
	desc := d.Kind.Description() + ":"
	newText, oldText := notAvail, notAvail
	if d.New != nil {
		newText = fmt.Sprint(*d.New)
	}
	if d.Old != nil {
		oldText = fmt.Sprint(*d.Old)
	}

	var change string
	switch {
	case d.Diffs == nil:
		change = "(" + faint(unknownDiff) + ")"
	case d.Diffs.Percentage.IsUnbounded():
		change = fmt.Sprintf("(%s) [%s]", increase("+++inf+++"), increase("+++inf+++"))
	case d.Diffs.Absolute == 0:
		change = "(" + faint(noChange) + ")"
	default:
		change = fmt.Sprintf("(%s) [%s]", colorize(d.Diffs.Percentage, d.Diffs.Percentage.String()),
			colorize(d.Diffs.Percentage, factor(*d.New, *d.Old)))
	}
	fmt.Fprintf(p.W, "  %-*s%s|%-*s %s\n", descWidth, desc, bold(fmt.Sprintf("%*s", newWidth, newText)), oldWidth, oldText, change)
}

func colorize(pct callgrind.Percentage, text string) string {
	if pct > 0 {
		return increase(text)
	}
	return decrease(text)
}

// factor is new/old for an increase and -old/new for a decrease.
func factor(newValue, oldValue uint64) string {
	switch {
	case newValue >= oldValue && oldValue > 0:
		return fmt.Sprintf("%+.5fx", float64(newValue)/float64(oldValue))
	case newValue > 0:
		return fmt.Sprintf("%+.5fx", -float64(oldValue)/float64(newValue))
	default:
		return "---inf---"
	}
}

// Regressions prints every exceeded limit.
func (p *Printer) Regressions(regressions []callgrind.Regression) {
	if p.Format != OutputDefault {
		return
	}
	for _, r := range regressions {
		fmt.Fprintf(p.W, "Performance has regressed: %s (%d -> %d) regressed by %s (>%+.5f%%)\n",
			alert(r.Kind.Description()), r.Old, r.New, alert(r.Percentage.String()), r.Limit)
	}
}

// ToolSummary prints the log file summaries of a secondary tool.
func (p *Printer) ToolSummary(s tool.Summary) {
	if p.Format != OutputDefault {
		return
	}
	title := "======= " + strings.ToUpper(s.Tool.ID()) + " "
	fmt.Fprintln(p.W, sectionStyle.Render(title+strings.Repeat("=", max(0, 60-len(title)))))
	for _, ls := range s.Summaries {
		fmt.Fprintf(p.W, "  %-*s%s\n", descWidth, "Command:", ls.Command)
		pid := fmt.Sprint(ls.PID)
		if ls.ParentPID != 0 {
			pid += fmt.Sprintf(" (parent %d)", ls.ParentPID)
		}
		fmt.Fprintf(p.W, "  %-*s%s\n", descWidth, "PID:", pid)
		if ls.ErrorSummary != nil {
			var old *tool.ErrorSummary
			if ls.Old != nil {
				old = ls.Old.ErrorSummary
			}
			p.errorCounts("Errors:", ls.ErrorSummary.Errors, old, func(e *tool.ErrorSummary) uint64 { return e.Errors })
			p.errorCounts("Contexts:", ls.ErrorSummary.Contexts, old, func(e *tool.ErrorSummary) uint64 { return e.Contexts })
			p.errorCounts("Suppressed Errors:", ls.ErrorSummary.SuppressedErrors, old, func(e *tool.ErrorSummary) uint64 { return e.SuppressedErrors })
			p.errorCounts("Suppressed Contexts:", ls.ErrorSummary.SuppressedContexts, old, func(e *tool.ErrorSummary) uint64 { return e.SuppressedContexts })
		}
		if ls.HasErrors() {
			for _, line := range ls.Details {
				fmt.Fprintln(p.W, "  "+line)
			}
		}
		fmt.Fprintf(p.W, "  %-*s%s\n", descWidth, "Logfile:", ls.LogPath)
	}
}

func (p *Printer) errorCounts(desc string, n uint64, old *tool.ErrorSummary, get func(*tool.ErrorSummary) uint64) {
	newText := fmt.Sprintf("%*d", newWidth, n)
	if n > 0 {
		newText = alert(newText)
	} else {
		newText = bold(newText)
	}
	oldText := notAvail
	if old != nil {
		oldText = fmt.Sprint(get(old))
	}
	fmt.Fprintf(p.W, "  %-*s%s|%s\n", descWidth, desc, newText, oldText)
}

// Comparison prints the costs of a bench compared with another bench of the
// same group sharing its id.
func (p *Printer) Comparison(function, id, details string, cs callgrind.CostsSummary, truncate int) {
	if p.Format != OutputDefault {
		return
	}
	fmt.Fprintf(p.W, "  %s %s %s:%s\n", faint("Comparison with"), headerStyle.Render(function), bold(id),
		truncateDescription(details, truncate))
	for _, diff := range cs.Events {
		p.eventLine(diff)
	}
}

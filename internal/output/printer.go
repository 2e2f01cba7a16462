// Package output renders harness progress and results for a terminal.
//
// Banners use lipgloss boxes. The final step summary is a go-pretty table.
// Everything goes to a single writer so commands can be tested against a
// buffer.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"serverharness/internal/installer"
	"serverharness/internal/process"
	"serverharness/internal/report"
	"serverharness/internal/step"
)

var (
	successColor = lipgloss.Color("#10B981")
	errorColor   = lipgloss.Color("#F87171")
	accentColor  = lipgloss.Color("#A78BFA")
	mutedColor   = lipgloss.Color("#9CA3AF")

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			Padding(0, 2)

	stepStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(accentColor).
			Padding(0, 1)

	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
)

// Printer writes formatted harness output. It is safe for concurrent use:
// step progress and server output arrive from different goroutines.
type Printer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPrinter creates a Printer writing to stdout.
func NewPrinter() *Printer {
	return NewPrinterWithWriter(os.Stdout)
}

// NewPrinterWithWriter creates a Printer writing to w.
func NewPrinterWithWriter(w io.Writer) *Printer {
	return &Printer{out: w}
}

func (p *Printer) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, s)
}

// RunHeader prints the banner shown before a run starts.
func (p *Printer) RunHeader(minecraftVersion, forgeVersion, serverDir string, steps []step.Step) {
	lines := []string{
		"Server Harness",
		fmt.Sprintf("Minecraft %s | Forge %s", minecraftVersion, forgeVersion),
		"Directory: " + serverDir,
		fmt.Sprintf("Steps: %d", len(steps)),
	}
	p.println("")
	p.println(boxStyle.BorderForeground(accentColor).Render(strings.Join(lines, "\n")))
	p.println("")
}

// Stage prints a one-line marker when a run phase begins.
func (p *Printer) Stage(name string) {
	p.println(mutedStyle.Render("● " + name))
}

// StepStart prints the header for a step. index is 1-based.
func (p *Printer) StepStart(index, total int, s step.Step) {
	p.println(stepStyle.Render(fmt.Sprintf("[%d/%d] %s", index, total, s)))
}

// ServerLine echoes one line of server output.
func (p *Printer) ServerLine(line process.Line) {
	if line.Stream == process.StreamStderr {
		p.println(mutedStyle.Render("  [stderr] ") + line.Text)
		return
	}
	p.println("  " + line.Text)
}

// InstallResult prints the outcome of an install.
func (p *Printer) InstallResult(res installer.Result) {
	if res.AlreadyInstalled {
		p.println(successStyle.Render("✓ Already installed: ") + res.ServerJar)
		return
	}
	p.println(successStyle.Render("✓ Installed: ") + res.ServerJar)
	p.println(mutedStyle.Render(fmt.Sprintf("  installer %s, took %s",
		humanize.Bytes(uint64(res.InstallerSize)), res.Duration.Round(time.Millisecond))))
}

// StepList prints the configured steps without running them.
func (p *Printer) StepList(steps []step.Step) {
	if len(steps) == 0 {
		p.println(mutedStyle.Render("No steps configured"))
		return
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Kind", "Step"})
	for i, s := range steps {
		t.AppendRow(table.Row{i + 1, s.Kind(), s.String()})
	}
	p.println(t.Render())
}

// Summary prints the step table and the final result box for a report.
func (p *Printer) Summary(rep *report.Report) {
	p.println("")
	if len(rep.Steps) > 0 {
		p.println(stepTable(rep))
		p.println("")
	}

	var lines []string
	style := boxStyle
	if rep.Success {
		style = style.BorderForeground(successColor)
		lines = append(lines, successStyle.Render("✓ RUN PASSED"))
	} else {
		style = style.BorderForeground(errorColor)
		lines = append(lines, errorStyle.Render("✗ RUN FAILED"))
	}

	lines = append(lines,
		"Run: "+rep.RunID,
		fmt.Sprintf("State: %s | Server exit code: %d", rep.State, rep.ExitCode),
	)
	if rep.Ready {
		lines = append(lines, "Ready after: "+formatMS(rep.ReadyAfterMS))
	}
	lines = append(lines, "Total: "+formatMS(rep.DurationMS))
	if rep.Error != "" {
		lines = append(lines, "Error: "+rep.Error)
	}

	p.println(style.Render(strings.Join(lines, "\n")))
}

func stepTable(rep *report.Report) string {
	t := table.NewWriter()
	style := table.StyleLight
	style.Format.Footer = text.FormatDefault
	t.SetStyle(style)
	t.AppendHeader(table.Row{"#", "Kind", "Step", "Duration", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Step", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
	})

	for _, s := range rep.Steps {
		duration := "-"
		if s.Status != report.StepSkipped {
			duration = formatMS(s.DurationMS)
		}
		t.AppendRow(table.Row{s.Index + 1, s.Kind, s.Step, duration, statusLabel(s.Status)})
	}

	t.AppendFooter(table.Row{
		"", "", "TOTAL",
		formatMS(rep.DurationMS),
		fmt.Sprintf("%d passed, %d failed, %d skipped",
			rep.Count(report.StepPassed), rep.Count(report.StepFailed), rep.Count(report.StepSkipped)),
	})
	return t.Render()
}

func statusLabel(s report.StepStatus) string {
	switch s {
	case report.StepPassed:
		return "✓ passed"
	case report.StepFailed:
		return "✗ failed"
	default:
		return "○ skipped"
	}
}

// Error prints an error outside a run summary.
func (p *Printer) Error(err error) {
	p.println(errorStyle.Render("✗ ") + err.Error())
}

func formatMS(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}

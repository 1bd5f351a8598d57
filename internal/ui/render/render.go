// Package render provides styled terminal output for the sandlibc harness:
// the shim call trace and the export table.
package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bywater/sandlibc/internal/shim"
	"github.com/bywater/sandlibc/internal/trace"
)

var (
	seqStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#808080"))
	symbolStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC800")).Bold(true)
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	headStyle   = lipgloss.NewStyle().Bold(true).Underline(true)

	categoryColors = map[trace.Tag]string{
		trace.Alloc:  "#FF80C0",
		trace.Ctype:  "#00FF00",
		trace.Strtol: "#00FF00",
		trace.Stdio:  "#87CEEB",
		trace.Printf: "#87CEEB",
		trace.Endian: "#808080",
		trace.Clock:  "#FF8000",
		trace.System: "#FF4040",
	}
)

// IsDisabled returns true if colors are disabled via environment.
func IsDisabled() bool {
	return os.Getenv("SANDLIBC_NO_COLOR") != "" || os.Getenv("NO_COLOR") != ""
}

func categoryStyle(tag trace.Tag) lipgloss.Style {
	color, ok := categoryColors[tag]
	if !ok {
		color = "#FFFFFF"
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}

// Events renders a call trace, one line per event.
func Events(events []trace.Event) string {
	var b strings.Builder
	for _, ev := range events {
		if IsDisabled() {
			fmt.Fprintf(&b, "%4d  #%-8s %-10s %s\n", ev.Seq, ev.Category, ev.Symbol, ev.Detail)
			continue
		}
		fmt.Fprintf(&b, "%s  %s %s %s\n",
			seqStyle.Render(fmt.Sprintf("%4d", ev.Seq)),
			categoryStyle(ev.Category).Render(fmt.Sprintf("#%-8s", ev.Category)),
			symbolStyle.Render(fmt.Sprintf("%-10s", ev.Symbol)),
			detailStyle.Render(ev.Detail),
		)
	}
	return b.String()
}

// ExportTable renders the linkable symbol table grouped by category, with
// the same #category heads the trace lines carry.
func ExportTable(symbols []shim.Symbol) string {
	byCategory := make(map[trace.Tag][]shim.Symbol)
	var order trace.Tags
	for _, sym := range symbols {
		order.Add(sym.Category)
		byCategory[sym.Category] = append(byCategory[sym.Category], sym)
	}
	heads := order.Strings()

	var b strings.Builder
	for i, tag := range order {
		head := fmt.Sprintf("%s (%d)", heads[i], len(byCategory[tag]))
		if IsDisabled() {
			fmt.Fprintf(&b, "%s\n", head)
		} else {
			fmt.Fprintf(&b, "%s\n", headStyle.Render(head))
		}
		for _, sym := range byCategory[tag] {
			sig := fmt.Sprintf("args=%d results=%d", sym.Params, sym.Results)
			if IsDisabled() {
				fmt.Fprintf(&b, "  %-10s %s\n", sym.Name, sig)
			} else {
				fmt.Fprintf(&b, "  %s %s\n",
					symbolStyle.Render(fmt.Sprintf("%-10s", sym.Name)),
					seqStyle.Render(sig),
				)
			}
		}
	}
	return b.String()
}

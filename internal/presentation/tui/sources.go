package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/journey/pkg/domain"
	"github.com/muesli/termenv"
)

// PrintSources writes a styled listing of sources and their subscribers.
func PrintSources(w io.Writer, sources []domain.SourceInfo) {
	out := termenv.NewOutput(w)
	if len(sources) == 0 {
		fmt.Fprintln(w, out.String("no sources declared").Faint())
		return
	}

	for _, src := range sources {
		name := out.String(src.Name).Bold()
		kind := out.String(src.Kind).Foreground(out.Color("#38bdf8"))

		var detail []string
		if src.Kind == "clock" {
			detail = append(detail, fmt.Sprintf("every %gs", src.PeriodSeconds))
			state := out.String("stopped").Faint()
			if src.Running {
				state = out.String("running").Foreground(out.Color("#22c55e"))
			}
			detail = append(detail, state.String())
		}
		fmt.Fprintf(w, "%s %s %s\n", name, kind, strings.Join(detail, " "))

		if len(src.Subscribers) == 0 {
			fmt.Fprintln(w, out.String("  (no activities)").Faint())
			continue
		}
		for _, act := range src.Subscribers {
			fmt.Fprintf(w, "  -> %s\n", act)
		}
	}
}

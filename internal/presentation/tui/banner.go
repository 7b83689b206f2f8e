package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner writes the journey banner and version to w.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	// Using a subtle gradient-like color scheme (Teal/Cyan)
	lines := []struct{ text, color string }{
		{`      _                                  `, "#2dd4bf"},
		{`     (_) ___  _   _ _ __ _ __   ___ _   _ `, "#22d3ee"},
		{`     | |/ _ \| | | | '__| '_ \ / _ \ | | |`, "#38bdf8"},
		{`     | | (_) | |_| | |  | | | |  __/ |_| |`, "#60a5fa"},
		{`    _/ |\___/ \__,_|_|  |_| |_|\___|\__, |`, "#818cf8"},
		{`   |__/                             |___/ `, "#a78bfa"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w, out.String("   v"+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}

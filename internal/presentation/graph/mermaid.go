package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/journey/pkg/domain"
)

// Overlay contains dynamic data to highlight on the graph.
type Overlay struct {
	// Failing lists activities that reported failures.
	Failing []string
}

// GenerateMermaid produces a Mermaid flowchart of sources and their subscribed
// activities. It applies semantic styling:
// - Clock: ((Circle)), annotated with its period
// - Trigger: [/Parallelogram/]
// - Activity: [[Subroutine]]
// Running clocks are styled, and failing activities when an overlay is given.
func GenerateMermaid(sources []domain.SourceInfo, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	seen := map[string]bool{}
	var running []string
	for _, src := range sources {
		safeID := "src_" + sanitizeMermaidID(src.Name)

		switch src.Kind {
		case "clock":
			label := src.Name
			if src.PeriodSeconds > 0 {
				label = fmt.Sprintf("%s <br/> every %gs", src.Name, src.PeriodSeconds)
			}
			fmt.Fprintf(&sb, "    %s((\"%s\"))\n", safeID, label)
			if src.Running {
				running = append(running, safeID)
			}
		default:
			fmt.Fprintf(&sb, "    %s[/\"%s\"/]\n", safeID, src.Name)
		}

		for _, act := range src.Subscribers {
			actID := "act_" + sanitizeMermaidID(act)
			if !seen[actID] {
				seen[actID] = true
				fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", actID, act)
			}
			fmt.Fprintf(&sb, "    %s --> %s\n", safeID, actID)
		}
	}

	if len(running) > 0 || overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef running fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef failing fill:#ffcdd2,stroke:#b71c1c,stroke-width:4px,color:#000;\n")
		for _, id := range running {
			fmt.Fprintf(&sb, "    class %s running;\n", id)
		}
	}
	if overlay != nil {
		styled := map[string]bool{}
		for _, act := range overlay.Failing {
			actID := "act_" + sanitizeMermaidID(act)
			if seen[actID] && !styled[actID] {
				styled[actID] = true
				fmt.Fprintf(&sb, "    class %s failing;\n", actID)
			}
		}
	}

	return sb.String()
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}

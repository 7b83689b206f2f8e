package cli

import (
	"fmt"
	"io"

	"github.com/aretw0/journey/internal/logging"
	"github.com/aretw0/journey/internal/presentation/graph"
	"github.com/aretw0/journey/internal/presentation/tui"
	"github.com/aretw0/journey/pkg/config"
)

// Validate loads the declaration file and declares everything in it without
// starting any clock. The returned count is the number of declared activities.
func Validate(path string) (int, error) {
	st, err := load(path)
	if err != nil {
		return 0, err
	}
	return len(st.engine.Activities()), nil
}

// Inspect prints the sources declared by the file and their subscribers,
// as a table or as a Mermaid diagram.
func Inspect(path string, mermaid bool, out io.Writer) error {
	st, err := load(path)
	if err != nil {
		return err
	}
	sources := st.engine.Sources()
	if mermaid {
		fmt.Fprintln(out, graph.GenerateMermaid(sources, nil))
		return nil
	}
	tui.PrintSources(out, sources)
	return nil
}

func load(path string) (*stack, error) {
	f, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return createEngine(f, logging.NewNop(), io.Discard, false)
}

package ports

import (
	"context"

	"github.com/aretw0/journey/pkg/domain"
)

// Dispatcher is the surface adapters use to inject external events.
type Dispatcher interface {
	// Fire triggers the named source with the given sender parameters and waits
	// until every subscriber has been dispatched.
	Fire(ctx context.Context, source string, params map[string]any) error

	// Sources lists every named source for introspection.
	Sources() []domain.SourceInfo
}

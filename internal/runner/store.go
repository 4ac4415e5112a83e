package runner

import (
	"context"

	"github.com/cory-johannsen/gamerunner/internal/game/session"
)

//go:generate mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

// ResultStore records completed sessions. Writes are best effort: failures are
// logged and never affect routing.
type ResultStore interface {
	SaveResult(ctx context.Context, res session.Result) error
}

package store

import (
	"context"

	"github.com/joescharf/exgate/internal/models"
)

// Store defines the persistence interface for run history.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, r *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*models.Run, error)
	FinishRun(ctx context.Context, r *models.Run) error
	DeleteRun(ctx context.Context, id string) error

	// Results
	AddResult(ctx context.Context, res *models.ExampleResult) error
	ListResults(ctx context.Context, runID string) ([]*models.ExampleResult, error)
	ExampleHistory(ctx context.Context, example string, limit int) ([]*models.ExampleResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

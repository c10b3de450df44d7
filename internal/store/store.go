package store

import (
	"context"
	"errors"

	"github.com/atnpgo/arwes/internal/model"
)

// ErrInvalidTransition is returned when a load status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// LoadStats holds aggregate load statistics.
type LoadStats struct {
	Total             int            `json:"total"`
	CountByStatus     map[string]int `json:"count_by_status"`
	CountByFailedKind map[string]int `json:"count_by_failed_kind"`
	TimedOut          int            `json:"timed_out"`
	AvgDurationMS     float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for loads and their progress events.
type Store interface {
	CreateLoad(ctx context.Context, l *model.Load) error
	GetLoad(ctx context.Context, id string) (*model.Load, error)
	ListLoads(ctx context.Context, limit, offset int) ([]*model.Load, int, error)
	UpdateLoadStatus(ctx context.Context, id, status string) error
	UpdateLoad(ctx context.Context, l *model.Load) error
	GetLoadStats(ctx context.Context) (*LoadStats, error)
	InsertEvent(ctx context.Context, e *model.Event) error
	Ping(ctx context.Context) error
	GetEvents(ctx context.Context, loadID string) ([]model.Event, error)
	Close() error
}

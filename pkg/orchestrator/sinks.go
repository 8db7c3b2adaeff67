package orchestrator

import (
	"time"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
)

// MetricSink is the optional collaborator persistence hangs off of
// (spec.md §6): a decision tick stores at most one snapshot into it, and
// warm-start reads recent history back out of it. A nil MetricSink means
// "no persistence" — every call site checks for nil rather than requiring
// a no-op implementation (spec.md §9's "absent-implementation marker").
type MetricSink interface {
	Store(snapshot *breaker.Snapshot, breakerName string) error
	LoadHistorical(breakerName string, lookback time.Duration) ([]*breaker.Snapshot, error)
	Shutdown() error
}

// ModelSink is the optional collaborator that persists the ensemble's
// opaque serialized parameters (spec.md §6). A nil ModelSink means
// "no persistence".
type ModelSink interface {
	Save(modelBytes []byte, serviceName string) error
	Load(serviceName string) ([]byte, error)
}

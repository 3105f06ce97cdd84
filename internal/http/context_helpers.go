package httpx

import (
	"context"

	"github.com/target/lms-access/internal/domain/access"
)

// snapshotKey is an unexported context key type to avoid collisions across packages.
type snapshotKey struct{}

// SetSnapshotInContext returns a child context that carries the session snapshot.
func SetSnapshotInContext(ctx context.Context, s access.Snapshot) context.Context {
	return context.WithValue(ctx, snapshotKey{}, s)
}

// SnapshotFromContext returns the snapshot stored by a guard middleware and whether one
// was present.
func SnapshotFromContext(ctx context.Context) (access.Snapshot, bool) {
	s, ok := ctx.Value(snapshotKey{}).(access.Snapshot)
	return s, ok
}

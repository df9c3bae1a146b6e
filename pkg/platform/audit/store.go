package audit

import (
	"context"

	id "attune/pkg/domain"
)

// Store persists audit events. Implementations must be safe for concurrent
// use; the compliance publisher calls Append on the request path.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByCouple(ctx context.Context, coupleID id.CoupleID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}

package couples

import (
	"context"

	id "attune/pkg/domain"
)

// Store persists couple links. Get returns sentinel.ErrNotFound when no
// link exists; services translate that to a coded domain error.
type Store interface {
	Save(ctx context.Context, link Link) error
	Update(ctx context.Context, link Link) error
	Get(ctx context.Context, coupleID id.CoupleID) (Link, error)
	ListByTherapist(ctx context.Context, therapistID id.TherapistID) ([]Link, error)
}

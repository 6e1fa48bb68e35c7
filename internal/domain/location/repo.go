package location

import (
	"context"
)

// Filters restricts list queries on the accessibility extension. A nil/false
// field imposes no constraint; true requires the corresponding flag.
type Filters struct {
	Accessible    bool
	Unisex        bool
	ChangingTable bool
	Status        string // defaults to active
}

// Repository is the reconciliation store for canonical resources.
type Repository interface {
	Insert(ctx context.Context, loc *Location) error
	Update(ctx context.Context, loc *Location) error
	FindByID(ctx context.Context, id string) (*Location, error)
	ExistsByExternalID(ctx context.Context, system, value string) (bool, error)
	SearchByRadius(ctx context.Context, lat, lng, radiusMiles float64, limit, skip int) ([]*Location, error)
	SearchByText(ctx context.Context, query string, limit, skip int) ([]*Location, error)
	ListFiltered(ctx context.Context, f Filters, limit, skip int) ([]*Location, int, error)
	IncrementVote(ctx context.Context, id string, kind VoteKind) (*Location, error)
	DeleteBySource(ctx context.Context, source string) (int64, error)
	CountBySource(ctx context.Context, source string) (int, error)
	Count(ctx context.Context) (int, error)
}

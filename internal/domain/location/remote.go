package location

import "context"

// RemoteFilters narrows an unscoped remote listing.
type RemoteFilters struct {
	ADA    *bool
	Unisex *bool
}

// RemoteSource fetches flat restroom records from the upstream directory.
// Records come back in the legacy wire shape and are transformed before
// they touch the store.
type RemoteSource interface {
	ByLocation(ctx context.Context, lat, lng float64, perPage int) ([]*LegacyRecord, error)
	Search(ctx context.Context, query string, perPage int) ([]*LegacyRecord, error)
	List(ctx context.Context, f RemoteFilters, perPage int) ([]*LegacyRecord, error)
	ByDate(ctx context.Context, day, month, year, perPage int) ([]*LegacyRecord, error)
}

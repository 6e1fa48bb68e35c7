package location

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/restroomfinder/restroomfinder/internal/platform/fhir"
)

// DefaultSparsityThreshold is the local result count below which a search
// triggers an opportunistic hydration pass.
const DefaultSparsityThreshold = 5

const (
	defaultLimit       = 20
	defaultRadiusMiles = 20
)

// Geocoder resolves a postal address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*fhir.Position, error)
}

// TokenValidator verifies an anti-abuse token attached to a submission.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (bool, error)
}

// SearchOptions tunes the search operations. Zero values fall back to
// the defaults (limit 20, radius 20 miles).
type SearchOptions struct {
	Limit       int
	Skip        int
	RadiusMiles float64
}

func (o SearchOptions) limit() int {
	if o.Limit <= 0 {
		return defaultLimit
	}
	return o.Limit
}

func (o SearchOptions) radius() float64 {
	if o.RadiusMiles <= 0 {
		return defaultRadiusMiles
	}
	return o.RadiusMiles
}

// Service orchestrates queries over the store with hydration fallback,
// and handles submissions, updates, and voting.
type Service struct {
	repo     Repository
	hydrator *Hydrator
	geocoder Geocoder
	captcha  TokenValidator
	sparsity int
	log      zerolog.Logger
}

// NewService wires the query orchestrator. geocoder and captcha may be nil;
// the corresponding steps are then skipped. sparsity <= 0 uses the default.
func NewService(repo Repository, hydrator *Hydrator, geocoder Geocoder, captcha TokenValidator, sparsity int, log zerolog.Logger) *Service {
	if sparsity <= 0 {
		sparsity = DefaultSparsityThreshold
	}
	return &Service{
		repo:     repo,
		hydrator: hydrator,
		geocoder: geocoder,
		captcha:  captcha,
		sparsity: sparsity,
		log:      log.With().Str("component", "location-service").Logger(),
	}
}

// SearchByLocation returns active locations within the radius ordered by
// distance. Sparse local results trigger a hydration pass and one re-read;
// hydration failures are logged and never fail the search.
func (s *Service) SearchByLocation(ctx context.Context, lat, lng float64, opts SearchOptions) ([]*Location, error) {
	locs, err := s.repo.SearchByRadius(ctx, lat, lng, opts.radius(), opts.limit(), opts.Skip)
	if err != nil {
		return nil, err
	}

	if len(locs) < s.sparsity && s.hydrator != nil && s.hydrator.Enabled() {
		sum, herr := s.hydrator.ByLocation(ctx, lat, lng, opts.limit())
		if herr != nil {
			s.log.Warn().Err(herr).Msg("hydration failed, serving local results")
		} else if sum.Saved > 0 {
			locs, err = s.repo.SearchByRadius(ctx, lat, lng, opts.radius(), opts.limit(), opts.Skip)
			if err != nil {
				return nil, err
			}
		}
	}

	return locs, nil
}

// SearchByText matches against name and address fields, with the same
// hydration fallback as SearchByLocation.
func (s *Service) SearchByText(ctx context.Context, query string, opts SearchOptions) ([]*Location, error) {
	if query == "" {
		return nil, NewError(KindValidation, "search query is required")
	}

	locs, err := s.repo.SearchByText(ctx, query, opts.limit(), opts.Skip)
	if err != nil {
		return nil, err
	}

	if len(locs) < s.sparsity && s.hydrator != nil && s.hydrator.Enabled() {
		sum, herr := s.hydrator.BySearch(ctx, query, opts.limit())
		if herr != nil {
			s.log.Warn().Err(herr).Msg("hydration failed, serving local results")
		} else if sum.Saved > 0 {
			locs, err = s.repo.SearchByText(ctx, query, opts.limit(), opts.Skip)
			if err != nil {
				return nil, err
			}
		}
	}

	return locs, nil
}

// GetAll lists active locations with optional amenity filters. Filters
// combine conjunctively. The returned count is the filtered total, not the
// page size.
func (s *Service) GetAll(ctx context.Context, f Filters, limit, skip int) ([]*Location, int, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	return s.repo.ListFiltered(ctx, f, limit, skip)
}

func (s *Service) GetByID(ctx context.Context, id string) (*Location, error) {
	if id == "" {
		return nil, NewError(KindValidation, "id is required")
	}
	return s.repo.FindByID(ctx, id)
}

// Submit ingests a new location from a user. raw may be a canonical
// resource or a legacy flat record; anything else is rejected. The stored
// resource is stamped as a local submission regardless of what the caller
// claimed about provenance.
func (s *Service) Submit(ctx context.Context, raw []byte, captchaToken string) (*Location, error) {
	if s.captcha != nil {
		ok, err := s.captcha.Validate(ctx, captchaToken)
		if err != nil {
			return nil, WrapError(KindValidation, "captcha verification failed", err)
		}
		if !ok {
			return nil, NewError(KindValidation, "captcha verification failed")
		}
	}

	var loc *Location
	switch DetectFormat(raw) {
	case FormatCanonical:
		loc = New()
		if err := json.Unmarshal(raw, loc); err != nil {
			return nil, WrapError(KindInvalidData, "decode resource", err)
		}
	case FormatLegacy:
		var rec LegacyRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, WrapError(KindInvalidData, "decode record", err)
		}
		loc = FromSubmission(rec)
	default:
		return nil, NewError(KindInvalidData, "submission matches neither the resource nor the flat record shape")
	}

	if loc.ID == "" {
		loc.ID = NewLocalID()
	}
	loc.ResourceType = "Location"
	loc.Status = StatusActive

	now := time.Now().UTC()
	loc.Meta = &fhir.Meta{
		VersionID:   "1",
		LastUpdated: now,
		Source:      SourceLocalSubmission,
	}
	loc.EnsureProfile()
	if loc.PhysicalType == nil {
		loc.PhysicalType = BuildingPhysicalType()
	}
	loc.SetApprovalStatus(ApprovalStatus{Approved: true, FromHydration: false})
	loc.SetCreatedAt(now)

	s.maybeGeocode(ctx, loc)

	if err := loc.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Insert(ctx, loc); err != nil {
		return nil, err
	}

	s.log.Info().Str("id", loc.ID).Str("name", loc.Name).Msg("location submitted")
	return loc, nil
}

// maybeGeocode fills in missing coordinates from the address. Failures
// are logged; a submission without coordinates is still accepted.
func (s *Service) maybeGeocode(ctx context.Context, loc *Location) {
	if s.geocoder == nil || loc.Position != nil {
		return
	}
	addr := loc.FullAddress()
	if addr == "" || loc.Address == nil || loc.Address.City == "" || loc.Address.State == "" {
		return
	}
	pos, err := s.geocoder.Geocode(ctx, addr)
	if err != nil {
		s.log.Warn().Err(err).Str("address", addr).Msg("geocoding failed, storing without coordinates")
		return
	}
	loc.Position = pos
}

// Update applies a partial update over the stored resource. Fields present
// in raw overwrite the stored values; id, provenance, and version are
// controlled here, not by the caller.
func (s *Service) Update(ctx context.Context, id string, raw []byte) (*Location, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	source := ""
	if existing.Meta != nil {
		source = existing.Meta.Source
	}
	version := existing.VersionInt()

	if err := json.Unmarshal(raw, existing); err != nil {
		return nil, WrapError(KindInvalidData, "decode update", err)
	}

	existing.ID = id
	existing.ResourceType = "Location"
	if existing.Meta == nil {
		existing.Meta = &fhir.Meta{}
	}
	existing.Meta.Source = source
	existing.Meta.VersionID = strconv.Itoa(version)
	existing.BumpVersion(time.Now().UTC())

	if err := existing.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}

	s.log.Info().Str("id", id).Str("version", existing.Meta.VersionID).Msg("location updated")
	return existing, nil
}

func (s *Service) Upvote(ctx context.Context, id string) (*Location, error) {
	return s.repo.IncrementVote(ctx, id, VoteUp)
}

func (s *Service) Downvote(ctx context.Context, id string) (*Location, error) {
	return s.repo.IncrementVote(ctx, id, VoteDown)
}

// PurgeBySource removes every location with the given provenance. Used by
// the admin surface to clear seeded test data.
func (s *Service) PurgeBySource(ctx context.Context, source string) (int64, error) {
	if source == "" {
		return 0, NewError(KindValidation, "source is required")
	}
	n, err := s.repo.DeleteBySource(ctx, source)
	if err != nil {
		return 0, err
	}
	s.log.Info().Str("source", source).Int64("deleted", n).Msg("purged by source")
	return n, nil
}

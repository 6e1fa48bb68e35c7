package location

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// HydrationDetail records the outcome for one remote candidate.
type HydrationDetail struct {
	Success  bool   `json:"success"`
	Skipped  bool   `json:"skipped,omitempty"`
	Reason   string `json:"reason,omitempty"`
	FHIRID   string `json:"fhirId,omitempty"`
	LegacyID string `json:"legacyId,omitempty"`
}

// HydrationSummary aggregates one hydration run. When the toggle is off
// the run short-circuits with Disabled set and zero counters.
type HydrationSummary struct {
	Disabled bool              `json:"disabled,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Total    int               `json:"total"`
	Saved    int               `json:"saved"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	Details  []HydrationDetail `json:"details,omitempty"`
}

// HydrationStats describes how much of the store came from the remote API.
type HydrationStats struct {
	Total               int     `json:"total"`
	Hydrated            int     `json:"hydrated"`
	Local               int     `json:"local"`
	HydrationPercentage float64 `json:"hydrationPercentage"`
}

// Hydrator backfills the store from the remote directory. The enabled
// toggle gates every entry point and is safe to flip at runtime.
type Hydrator struct {
	repo    Repository
	remote  RemoteSource
	enabled atomic.Bool
	log     zerolog.Logger
}

func NewHydrator(repo Repository, remote RemoteSource, enabled bool, log zerolog.Logger) *Hydrator {
	h := &Hydrator{
		repo:   repo,
		remote: remote,
		log:    log.With().Str("component", "hydrator").Logger(),
	}
	h.enabled.Store(enabled)
	return h
}

func (h *Hydrator) Enabled() bool { return h.enabled.Load() }

func (h *Hydrator) SetEnabled(on bool) {
	h.enabled.Store(on)
	h.log.Info().Bool("enabled", on).Msg("hydration toggled")
}

func disabledSummary() *HydrationSummary {
	return &HydrationSummary{Disabled: true, Reason: "hydration-disabled"}
}

// ByLocation fetches remote records near the point and stores the new ones.
func (h *Hydrator) ByLocation(ctx context.Context, lat, lng float64, perPage int) (*HydrationSummary, error) {
	if !h.Enabled() {
		return disabledSummary(), nil
	}
	h.log.Debug().Float64("lat", lat).Float64("lng", lng).Msg("hydrating by location")
	records, err := h.remote.ByLocation(ctx, lat, lng, perPage)
	if err != nil {
		return nil, err
	}
	return h.fromResults(ctx, records), nil
}

func (h *Hydrator) BySearch(ctx context.Context, query string, perPage int) (*HydrationSummary, error) {
	if !h.Enabled() {
		return disabledSummary(), nil
	}
	h.log.Debug().Str("query", query).Msg("hydrating by search")
	records, err := h.remote.Search(ctx, query, perPage)
	if err != nil {
		return nil, err
	}
	return h.fromResults(ctx, records), nil
}

func (h *Hydrator) WithFilters(ctx context.Context, f RemoteFilters, perPage int) (*HydrationSummary, error) {
	if !h.Enabled() {
		return disabledSummary(), nil
	}
	records, err := h.remote.List(ctx, f, perPage)
	if err != nil {
		return nil, err
	}
	return h.fromResults(ctx, records), nil
}

func (h *Hydrator) ByDate(ctx context.Context, day, month, year, perPage int) (*HydrationSummary, error) {
	if !h.Enabled() {
		return disabledSummary(), nil
	}
	records, err := h.remote.ByDate(ctx, day, month, year, perPage)
	if err != nil {
		return nil, err
	}
	return h.fromResults(ctx, records), nil
}

// fromResults saves each candidate independently; one bad record never
// aborts the batch.
func (h *Hydrator) fromResults(ctx context.Context, records []*LegacyRecord) *HydrationSummary {
	sum := &HydrationSummary{Total: len(records)}
	for _, rec := range records {
		d := h.saveOne(ctx, rec)
		switch {
		case d.Success:
			sum.Saved++
		case d.Skipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
		sum.Details = append(sum.Details, d)
	}
	h.log.Info().
		Int("total", sum.Total).
		Int("saved", sum.Saved).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Msg("hydration run complete")
	return sum
}

func (h *Hydrator) saveOne(ctx context.Context, rec *LegacyRecord) HydrationDetail {
	if rec == nil || rec.ID == "" {
		return HydrationDetail{Reason: "invalid-data"}
	}
	legacyID := string(rec.ID)

	exists, err := h.repo.ExistsByExternalID(ctx, SystemLegacyAPI, legacyID)
	if err != nil {
		h.log.Error().Err(err).Str("legacy_id", legacyID).Msg("existence check failed")
		return HydrationDetail{Reason: err.Error(), LegacyID: legacyID}
	}
	if exists {
		return HydrationDetail{Skipped: true, Reason: "already-exists", LegacyID: legacyID}
	}

	loc := ToCanonical(*rec)
	if err := loc.Validate(); err != nil {
		return HydrationDetail{Reason: "invalid-data", LegacyID: legacyID}
	}

	if err := h.repo.Insert(ctx, loc); err != nil {
		// A concurrent run can win the race between the existence check
		// and the insert; the unique index reports that as a duplicate.
		if IsDuplicate(err) {
			return HydrationDetail{Skipped: true, Reason: "already-exists", LegacyID: legacyID}
		}
		h.log.Error().Err(err).Str("legacy_id", legacyID).Msg("hydration insert failed")
		return HydrationDetail{Reason: err.Error(), LegacyID: legacyID}
	}

	h.log.Debug().Str("id", loc.ID).Str("legacy_id", legacyID).Str("name", loc.Name).Msg("hydrated")
	return HydrationDetail{Success: true, FHIRID: loc.ID, LegacyID: legacyID}
}

// Stats reports store composition by provenance.
func (h *Hydrator) Stats(ctx context.Context) (*HydrationStats, error) {
	total, err := h.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	hydrated, err := h.repo.CountBySource(ctx, SourceLegacyAPI)
	if err != nil {
		return nil, err
	}
	stats := &HydrationStats{Total: total, Hydrated: hydrated, Local: total - hydrated}
	if total > 0 {
		pct := float64(hydrated) / float64(total) * 100
		stats.HydrationPercentage = math.Round(pct*100) / 100
	}
	return stats, nil
}

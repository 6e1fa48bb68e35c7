package location

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/restroomfinder/restroomfinder/internal/platform/fhir"
)

type seedCity struct {
	name  string
	state string
	lat   float64
	lng   float64
}

var seedCities = []seedCity{
	{"New York", "NY", 40.7128, -74.0060},
	{"Los Angeles", "CA", 34.0522, -118.2437},
	{"Chicago", "IL", 41.8781, -87.6298},
	{"Houston", "TX", 29.7604, -95.3698},
	{"Philadelphia", "PA", 39.9526, -75.1652},
	{"Phoenix", "AZ", 33.4484, -112.0740},
	{"San Antonio", "TX", 29.4241, -98.4936},
	{"San Diego", "CA", 32.7157, -117.1611},
	{"Dallas", "TX", 32.7767, -96.7970},
	{"San Jose", "CA", 37.3382, -121.8863},
}

var seedNames = []string{
	"Coffee Shop Restroom", "Library Bathroom", "Mall Facilities",
	"Restaurant Restroom", "Gas Station Toilet", "Park Bathroom",
	"Museum Facilities", "Theater Restroom", "Hotel Bathroom",
	"Gym Restroom", "University Facilities", "Hospital Bathroom",
	"Airport Restroom", "Train Station Toilet", "Office Building Bathroom",
}

// SeedTestData replaces the test-data subset of the store with count fresh
// sample locations spread across major cities. Existing rows from other
// sources are untouched.
func SeedTestData(ctx context.Context, repo Repository, count int, log zerolog.Logger) (int, error) {
	if count <= 0 {
		count = 10
	}

	if _, err := repo.DeleteBySource(ctx, SourceTestData); err != nil {
		return 0, err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now().UTC()
	inserted := 0

	for i := 0; i < count; i++ {
		city := seedCities[i%len(seedCities)]
		name := seedNames[i%len(seedNames)]

		// roughly a kilometer of jitter around the city center
		latJitter := rng.Float64()*0.02 - 0.01
		lngJitter := rng.Float64()*0.02 - 0.01

		loc := New()
		loc.ID = NewLocalID()
		loc.Name = fmt.Sprintf("%s %d", name, i+1)
		loc.Meta = &fhir.Meta{
			VersionID:   "1",
			LastUpdated: now,
			Profile:     []string{ProfileRestroomLocation},
			Source:      SourceTestData,
		}
		loc.Address = &fhir.Address{
			Use:     "work",
			Type:    "physical",
			Line:    []string{fmt.Sprintf("%d Main St", 100+i)},
			City:    city.name,
			State:   city.state,
			Country: "United States",
		}
		loc.Position = &fhir.Position{
			Latitude:  city.lat + latJitter,
			Longitude: city.lng + lngJitter,
		}
		loc.SetAccessibilityFeatures(AccessibilityFeatures{
			Accessible:    rng.Intn(2) == 0,
			Unisex:        rng.Intn(10) < 7,
			ChangingTable: rng.Intn(10) < 3,
		})
		loc.SetFacilityDetails(FacilityDetails{
			Directions: "Enter through the main door and turn right.",
			Comments:   "Clean and well-maintained.",
		})
		loc.SetRating(CommunityRating{
			Upvotes:   rng.Intn(50),
			Downvotes: rng.Intn(10),
		})
		loc.SetApprovalStatus(ApprovalStatus{Approved: true})
		loc.SetCreatedAt(now.Add(-time.Duration(rng.Intn(120*24)) * time.Hour))

		if err := repo.Insert(ctx, loc); err != nil {
			log.Error().Err(err).Str("name", loc.Name).Msg("seed insert failed")
			continue
		}
		inserted++
	}

	log.Info().Int("requested", count).Int("inserted", inserted).Msg("test data seeded")
	return inserted, nil
}

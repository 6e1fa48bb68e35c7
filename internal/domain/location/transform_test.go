package location

import (
	"encoding/json"
	"testing"

	"github.com/restroomfinder/restroomfinder/internal/platform/fhir"
)

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want Format
	}{
		{"canonical", `{"resourceType":"Location","name":"Cafe X"}`, FormatCanonical},
		{"legacy by id", `{"id":42,"name":"Cafe X"}`, FormatLegacy},
		{"legacy by latitude", `{"latitude":"39.78","name":"Cafe X"}`, FormatLegacy},
		{"legacy by upvote", `{"upvote":3}`, FormatLegacy},
		{"legacy submission", `{"name":"Cafe X","street":"1 Elm St"}`, FormatLegacy},
		{"other resource type", `{"resourceType":"Patient","id":"42"}`, FormatUnknown},
		{"bare name", `{"name":"Cafe X"}`, FormatUnknown},
		{"not json", `not json`, FormatUnknown},
		{"array", `[1,2,3]`, FormatUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectFormat([]byte(tc.raw)); got != tc.want {
				t.Fatalf("DetectFormat(%s) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestToCanonicalRoundTrip(t *testing.T) {
	raw := `{
		"id": 42,
		"name": "Cafe X",
		"street": "1 Elm St",
		"city": "Springfield",
		"state": "IL",
		"latitude": "39.78",
		"longitude": "-89.65",
		"accessible": true,
		"upvote": "3",
		"downvote": "1"
	}`

	var rec LegacyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("unmarshal legacy record: %v", err)
	}

	loc := ToCanonical(rec)

	if loc.ID != "legacy-42" {
		t.Fatalf("ID = %q, want legacy-42", loc.ID)
	}
	if loc.ExternalID() != "42" {
		t.Fatalf("ExternalID() = %q, want 42", loc.ExternalID())
	}
	if loc.Position == nil {
		t.Fatal("Position is nil")
	}
	if loc.Position.Latitude != 39.78 || loc.Position.Longitude != -89.65 {
		t.Fatalf("Position = %+v, want {39.78 -89.65}", loc.Position)
	}
	if loc.Address == nil || loc.Address.Country != "United States" {
		t.Fatalf("Country not defaulted: %+v", loc.Address)
	}

	feat := loc.AccessibilityFeatures()
	if !feat.Accessible || feat.Unisex || feat.ChangingTable {
		t.Fatalf("features = %+v, want accessible only", feat)
	}
	rating := loc.Rating()
	if rating.Upvotes != 3 || rating.Downvotes != 1 {
		t.Fatalf("rating = %+v, want 3/1", rating)
	}
	appr := loc.ApprovalStatus()
	if !appr.Approved || !appr.FromHydration {
		t.Fatalf("approval = %+v, want approved hydrated", appr)
	}

	out := ToLegacy(loc)
	if out.ProductionID != "42" {
		t.Fatalf("ProductionID = %q, want 42", out.ProductionID)
	}
	if !out.Latitude.Valid || out.Latitude.Value != 39.78 {
		t.Fatalf("Latitude = %+v, want 39.78", out.Latitude)
	}
	if !out.Longitude.Valid || out.Longitude.Value != -89.65 {
		t.Fatalf("Longitude = %+v, want -89.65", out.Longitude)
	}
	if !out.Accessible || out.Unisex || out.ChangingTable {
		t.Fatalf("flags = %v/%v/%v, want accessible only", out.Accessible, out.Unisex, out.ChangingTable)
	}
	if out.Upvote != 3 || out.Downvote != 1 {
		t.Fatalf("votes = %d/%d, want 3/1", out.Upvote, out.Downvote)
	}
	if out.Street != "1 Elm St" || out.City != "Springfield" || out.State != "IL" {
		t.Fatalf("address = %q/%q/%q", out.Street, out.City, out.State)
	}
}

func TestToCanonicalGeoJSONFallback(t *testing.T) {
	rec := LegacyRecord{
		ID:   "7",
		Name: "Depot",
		Position: &GeoPoint{
			Type:        "Point",
			Coordinates: [2]float64{-73.99, 40.73},
		},
	}
	loc := ToCanonical(rec)
	if loc.Position == nil {
		t.Fatal("Position is nil")
	}
	if loc.Position.Latitude != 40.73 || loc.Position.Longitude != -73.99 {
		t.Fatalf("Position = %+v, want lat 40.73 lng -73.99", loc.Position)
	}
}

func TestToCanonicalMissingFields(t *testing.T) {
	loc := ToCanonical(LegacyRecord{})
	if loc.Name != "Unnamed Restroom" {
		t.Fatalf("Name = %q, want Unnamed Restroom", loc.Name)
	}
	if loc.ID == "" {
		t.Fatal("expected generated local id")
	}
	if loc.Position != nil {
		t.Fatalf("Position = %+v, want nil", loc.Position)
	}
	if err := loc.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestToLegacyGeoJSONMirror(t *testing.T) {
	loc := New()
	loc.ID = "legacy-9"
	loc.Name = "Pier"
	loc.Position = &fhir.Position{Latitude: 47.61, Longitude: -122.33}

	rec := ToLegacy(loc)
	if rec.Position == nil {
		t.Fatal("GeoJSON mirror missing")
	}
	if rec.Position.Type != "Point" {
		t.Fatalf("Type = %q", rec.Position.Type)
	}
	if rec.Position.Coordinates[0] != -122.33 || rec.Position.Coordinates[1] != 47.61 {
		t.Fatalf("Coordinates = %v, want [lng lat]", rec.Position.Coordinates)
	}
}

func TestToLegacyNil(t *testing.T) {
	rec := ToLegacy(nil)
	if rec.Name != "" || rec.Position != nil {
		t.Fatalf("ToLegacy(nil) = %+v, want zero record", rec)
	}
}

func TestFromSubmission(t *testing.T) {
	loc := FromSubmission(LegacyRecord{
		Name:      "Library",
		Street:    "5 Oak Ave",
		City:      "Portland",
		State:     "OR",
		Latitude:  Float(45.52),
		Longitude: Float(-122.68),
		Unisex:    true,
	})
	if loc.ID == "" {
		t.Fatal("expected generated id")
	}
	if loc.ExternalID() != "" {
		t.Fatalf("ExternalID = %q, want none for submissions", loc.ExternalID())
	}
	if loc.Address.Country != "United States" {
		t.Fatalf("Country = %q", loc.Address.Country)
	}
	if loc.Position == nil || loc.Position.Latitude != 45.52 {
		t.Fatalf("Position = %+v", loc.Position)
	}
	if appr := loc.ApprovalStatus(); appr.Approved || appr.FromHydration {
		t.Fatalf("approval = %+v, want unset before orchestration", appr)
	}
}

func TestFlexDecoding(t *testing.T) {
	var rec LegacyRecord
	raw := `{"id":101,"edit_id":"abc","latitude":null,"longitude":"oops","upvote":"4.0","downvote":null}`
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.ID != "101" {
		t.Fatalf("ID = %q, want 101", rec.ID)
	}
	if rec.EditID != "abc" {
		t.Fatalf("EditID = %q", rec.EditID)
	}
	if rec.Latitude.Valid {
		t.Fatal("null latitude should be unset")
	}
	if rec.Longitude.Valid {
		t.Fatal("non-numeric longitude should be unset, not an error")
	}
	if rec.Upvote != 4 {
		t.Fatalf("Upvote = %d, want 4", rec.Upvote)
	}
	if rec.Downvote != 0 {
		t.Fatalf("Downvote = %d, want 0", rec.Downvote)
	}
}

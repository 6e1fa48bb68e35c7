package location

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/restroomfinder/restroomfinder/internal/platform/fhir"
)

// FlexString decodes a JSON string or number into a string. The legacy API
// serves numeric ids while stored legacy projections carry them as strings.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = FlexString(n.String())
	return nil
}

// FlexFloat decodes a JSON number or numeric string. Decode failures leave
// the value unset rather than erroring; the transform is total.
type FlexFloat struct {
	Value float64
	Valid bool
}

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = FlexFloat{}
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*f = FlexFloat{}
		return nil
	}
	*f = FlexFloat{Value: v, Valid: true}
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// Float returns a FlexFloat holding v.
func Float(v float64) FlexFloat { return FlexFloat{Value: v, Valid: true} }

// FlexInt decodes a JSON integer or numeric string, defaulting to 0 on
// parse failure.
type FlexInt int

func (i *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*i = 0
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			*i = 0
			return nil
		}
		v = int(f)
	}
	*i = FlexInt(v)
	return nil
}

// GeoPoint is the GeoJSON mirror of a position, coordinates [lng, lat].
type GeoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// LegacyRecord is the flat projection used by older UI surfaces and by the
// upstream production API. It is lossy relative to the canonical resource.
type LegacyRecord struct {
	MongoID       string     `json:"_id,omitempty"`
	ID            FlexString `json:"id,omitempty"`
	EditID        FlexString `json:"edit_id,omitempty"`
	ProductionID  string     `json:"productionId,omitempty"`
	Name          string     `json:"name,omitempty"`
	Street        string     `json:"street,omitempty"`
	City          string     `json:"city,omitempty"`
	State         string     `json:"state,omitempty"`
	Country       string     `json:"country,omitempty"`
	Latitude      FlexFloat  `json:"latitude,omitempty"`
	Longitude     FlexFloat  `json:"longitude,omitempty"`
	Position      *GeoPoint  `json:"position,omitempty"`
	Accessible    bool       `json:"accessible,omitempty"`
	Unisex        bool       `json:"unisex,omitempty"`
	ChangingTable bool       `json:"changing_table,omitempty"`
	Directions    string     `json:"directions,omitempty"`
	Comment       string     `json:"comment,omitempty"`
	Upvote        FlexInt    `json:"upvote,omitempty"`
	Downvote      FlexInt    `json:"downvote,omitempty"`
	Approved      bool       `json:"approved,omitempty"`
	FromHydration bool       `json:"fromHydration,omitempty"`
	Status        string     `json:"status,omitempty"`
	CreatedAt     string     `json:"created_at,omitempty"`
	UpdatedAt     string     `json:"updated_at,omitempty"`
	Distance      *float64   `json:"distance,omitempty"`
}

// Format classifies an object at the ingestion boundary.
type Format int

const (
	// FormatUnknown marks objects that match neither shape. The old
	// presence-check heuristic (id OR latitude OR upvote) is ambiguous
	// for legacy records lacking all three; unknowns are rejected at
	// ingestion rather than guessed.
	FormatUnknown Format = iota
	FormatCanonical
	FormatLegacy
)

// DetectFormat classifies raw JSON as canonical, legacy, or unknown.
func DetectFormat(raw []byte) Format {
	var probe struct {
		ResourceType string          `json:"resourceType"`
		ID           json.RawMessage `json:"id"`
		Latitude     json.RawMessage `json:"latitude"`
		Upvote       json.RawMessage `json:"upvote"`
		Name         json.RawMessage `json:"name"`
		Street       json.RawMessage `json:"street"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return FormatUnknown
	}
	if probe.ResourceType == "Location" {
		return FormatCanonical
	}
	if probe.ResourceType != "" {
		return FormatUnknown
	}
	if probe.ID != nil || probe.Latitude != nil || probe.Upvote != nil {
		return FormatLegacy
	}
	// Flat submissions without ids still look legacy when they carry the
	// address-shaped fields.
	if probe.Name != nil && probe.Street != nil {
		return FormatLegacy
	}
	return FormatUnknown
}

// ToCanonical converts a legacy record fetched from the remote API into a
// canonical resource. The result is marked as hydrated and approved; use
// FromSubmission for records entered by users.
func ToCanonical(rec LegacyRecord) *Location {
	loc := New()

	legacyID := string(rec.ID)
	if legacyID != "" {
		loc.ID = LegacyFHIRID(legacyID)
	} else {
		loc.ID = NewLocalID()
	}

	now := time.Now().UTC()
	loc.Meta = &fhir.Meta{
		VersionID:   "1",
		LastUpdated: now,
		Profile:     []string{ProfileRestroomLocation},
		Source:      SourceLegacyAPI,
	}
	if t, ok := parseLooseTime(rec.UpdatedAt); ok {
		loc.Meta.LastUpdated = t
	}

	loc.Name = rec.Name
	if loc.Name == "" {
		loc.Name = "Unnamed Restroom"
	}

	if legacyID != "" {
		loc.SetIdentifier("secondary", SystemLegacyAPI, legacyID)
	}
	if rec.EditID != "" {
		loc.SetIdentifier("secondary", SystemEditID, string(rec.EditID))
	}

	addr := &fhir.Address{Use: "work", Type: "physical"}
	if rec.Street != "" {
		addr.Line = []string{rec.Street}
	}
	addr.City = rec.City
	addr.State = rec.State
	addr.Country = rec.Country
	if addr.Country == "" {
		addr.Country = "United States"
	}
	loc.Address = addr

	if lat, lng, ok := rec.coordinates(); ok {
		loc.Position = &fhir.Position{Latitude: lat, Longitude: lng}
	}

	loc.SetAccessibilityFeatures(AccessibilityFeatures{
		Accessible:    rec.Accessible,
		Unisex:        rec.Unisex,
		ChangingTable: rec.ChangingTable,
	})
	loc.SetFacilityDetails(FacilityDetails{Directions: rec.Directions, Comments: rec.Comment})
	loc.SetRating(CommunityRating{Upvotes: int(rec.Upvote), Downvotes: int(rec.Downvote)})
	loc.SetApprovalStatus(ApprovalStatus{Approved: true, FromHydration: true})
	if t, ok := parseLooseTime(rec.CreatedAt); ok {
		loc.SetCreatedAt(t)
	}

	return loc
}

// FromSubmission converts legacy-shaped user input into a canonical
// resource for the direct-submission path. Provenance and approval are
// left for the orchestrator to stamp.
func FromSubmission(rec LegacyRecord) *Location {
	loc := New()
	loc.ID = NewLocalID()
	loc.Name = rec.Name
	if loc.Name == "" {
		loc.Name = "Unnamed Restroom"
	}

	country := rec.Country
	if country == "" {
		country = "United States"
	}
	loc.Address = &fhir.Address{
		Use:     "work",
		Type:    "physical",
		Line:    []string{rec.Street},
		City:    rec.City,
		State:   rec.State,
		Country: country,
	}

	if lat, lng, ok := rec.coordinates(); ok {
		loc.Position = &fhir.Position{Latitude: lat, Longitude: lng}
	}

	loc.SetAccessibilityFeatures(AccessibilityFeatures{
		Accessible:    rec.Accessible,
		Unisex:        rec.Unisex,
		ChangingTable: rec.ChangingTable,
	})
	loc.SetFacilityDetails(FacilityDetails{Directions: rec.Directions, Comments: rec.Comment})
	loc.SetRating(CommunityRating{Upvotes: int(rec.Upvote), Downvotes: int(rec.Downvote)})

	return loc
}

// ToLegacy projects a canonical resource into the flat legacy shape.
// Missing extensions yield zero values, never errors.
func ToLegacy(loc *Location) LegacyRecord {
	if loc == nil {
		return LegacyRecord{}
	}

	rec := LegacyRecord{
		MongoID: loc.ID,
		Name:    loc.Name,
		Status:  loc.Status,
	}

	if v := loc.ExternalID(); v != "" {
		rec.ProductionID = v
	}
	if v := loc.EditID(); v != "" {
		rec.EditID = FlexString(v)
	}

	if loc.Address != nil {
		if len(loc.Address.Line) > 0 {
			rec.Street = loc.Address.Line[0]
		}
		rec.City = loc.Address.City
		rec.State = loc.Address.State
		rec.Country = loc.Address.Country
	}

	if loc.Position != nil {
		rec.Latitude = Float(loc.Position.Latitude)
		rec.Longitude = Float(loc.Position.Longitude)
		// GeoJSON mirror uses [lng, lat] order.
		rec.Position = &GeoPoint{
			Type:        "Point",
			Coordinates: [2]float64{loc.Position.Longitude, loc.Position.Latitude},
		}
	}

	f := loc.AccessibilityFeatures()
	rec.Accessible = f.Accessible
	rec.Unisex = f.Unisex
	rec.ChangingTable = f.ChangingTable

	d := loc.FacilityDetails()
	rec.Directions = d.Directions
	rec.Comment = d.Comments

	r := loc.Rating()
	rec.Upvote = FlexInt(r.Upvotes)
	rec.Downvote = FlexInt(r.Downvotes)

	a := loc.ApprovalStatus()
	rec.Approved = a.Approved
	rec.FromHydration = a.FromHydration

	if t, ok := loc.CreatedAt(); ok {
		rec.CreatedAt = t.UTC().Format(time.RFC3339)
	}
	if loc.Meta != nil && !loc.Meta.LastUpdated.IsZero() {
		rec.UpdatedAt = loc.Meta.LastUpdated.UTC().Format(time.RFC3339)
	}

	rec.Distance = loc.Distance

	return rec
}

// ToLegacyAll projects a result set.
func ToLegacyAll(locs []*Location) []LegacyRecord {
	out := make([]LegacyRecord, len(locs))
	for i, loc := range locs {
		out[i] = ToLegacy(loc)
	}
	return out
}

func (r LegacyRecord) coordinates() (lat, lng float64, ok bool) {
	if r.Latitude.Valid && r.Longitude.Valid {
		return r.Latitude.Value, r.Longitude.Value, true
	}
	if r.Position != nil && r.Position.Type == "Point" {
		return r.Position.Coordinates[1], r.Position.Coordinates[0], true
	}
	return 0, 0, false
}

// parseLooseTime accepts the timestamp spellings the legacy API has been
// observed to serve.
func parseLooseTime(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

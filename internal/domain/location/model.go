package location

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/restroomfinder/restroomfinder/internal/platform/fhir"
)

// Well-known URIs for the restroom Location profile, identifier systems,
// and the extension vocabulary. These match the upstream directory's
// published StructureDefinitions.
const (
	ProfileRestroomLocation = "http://refugerestrooms.org/fhir/StructureDefinition/RestroomLocation"

	SystemLegacyAPI    = "http://refugerestrooms.org/legacy-api"
	SystemEditID       = "http://refugerestrooms.org/edit-id"
	SystemProductionID = "http://refugerestrooms.org/production-id"

	ExtAccessibility   = "http://refugerestrooms.org/fhir/StructureDefinition/accessibility-features"
	ExtFacilityDetails = "http://refugerestrooms.org/fhir/StructureDefinition/facility-details"
	ExtCommunityRating = "http://refugerestrooms.org/fhir/StructureDefinition/community-rating"
	ExtApprovalStatus  = "http://refugerestrooms.org/fhir/StructureDefinition/approval-status"
	ExtTimestamps      = "http://refugerestrooms.org/fhir/StructureDefinition/timestamps"

	subWheelchair    = "wheelchair-accessible"
	subUnisex        = "unisex-facility"
	subChangingTable = "changing-table"
	subDirections    = "directions"
	subComments      = "comments"
	subUpvotes       = "upvotes"
	subDownvotes     = "downvotes"
	subApproved      = "approved"
	subFromHydration = "from-hydration"
	subCreatedAt     = "created-at"
)

// Provenance tags recorded in meta.source.
const (
	SourceLegacyAPI       = "legacy-api"
	SourceLocalSubmission = "local-submission"
	SourceTestData        = "test-data"
)

// Location statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusInactive  = "inactive"
)

// Earth radii for Haversine distance.
const (
	earthRadiusMiles = 3959
	earthRadiusKm    = 6371
)

// Location is the canonical FHIR-flavored representation of a restroom.
// Restroom-specific facts live in URI-keyed extensions; typed accessors
// below are the only way service code reads or writes them.
type Location struct {
	ResourceType string                `json:"resourceType"`
	ID           string                `json:"id"`
	Meta         *fhir.Meta            `json:"meta,omitempty"`
	Status       string                `json:"status,omitempty"`
	Name         string                `json:"name,omitempty"`
	Identifier   []fhir.Identifier     `json:"identifier,omitempty"`
	Address      *fhir.Address         `json:"address,omitempty"`
	Position     *fhir.Position        `json:"position,omitempty"`
	PhysicalType *fhir.CodeableConcept `json:"physicalType,omitempty"`
	Extension    []fhir.Extension      `json:"extension,omitempty"`

	// Distance is computed per-query by radius search; never persisted.
	Distance *float64 `json:"distance,omitempty"`
}

// AccessibilityFeatures is the typed view of the accessibility extension.
type AccessibilityFeatures struct {
	Accessible    bool `json:"accessible"`
	Unisex        bool `json:"unisex"`
	ChangingTable bool `json:"changingTable"`
}

// FacilityDetails is the typed view of the facility-details extension.
type FacilityDetails struct {
	Directions string `json:"directions"`
	Comments   string `json:"comments"`
}

// CommunityRating is the typed view of the community-rating extension.
type CommunityRating struct {
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
}

// Total returns the number of votes cast.
func (r CommunityRating) Total() int { return r.Upvotes + r.Downvotes }

// Percentage returns the upvote share in [0,100], 0 when unrated.
func (r CommunityRating) Percentage() float64 {
	total := r.Total()
	if total == 0 {
		return 0
	}
	return float64(r.Upvotes) / float64(total) * 100
}

// IsRated reports whether any votes have been cast.
func (r CommunityRating) IsRated() bool { return r.Total() > 0 }

// ApprovalStatus is the typed view of the approval-status extension.
type ApprovalStatus struct {
	Approved      bool `json:"approved"`
	FromHydration bool `json:"fromHydration"`
}

// VoteKind selects which rating counter IncrementVote bumps.
type VoteKind string

const (
	VoteUp   VoteKind = "upvote"
	VoteDown VoteKind = "downvote"
)

// NewLocalID synthesizes an id for a direct submission.
func NewLocalID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("local-%d-%s", time.Now().UnixMilli(), suffix)
}

// LegacyFHIRID derives the canonical id for a record hydrated from the
// legacy API.
func LegacyFHIRID(legacyID string) string {
	return "legacy-" + legacyID
}

// New returns an empty active Location with the resourceType tag set.
func New() *Location {
	return &Location{
		ResourceType: "Location",
		Status:       StatusActive,
		PhysicalType: BuildingPhysicalType(),
	}
}

// BuildingPhysicalType is the fixed coding marking a restroom as a building.
func BuildingPhysicalType() *fhir.CodeableConcept {
	return &fhir.CodeableConcept{
		Coding: []fhir.Coding{{
			System:  "http://terminology.hl7.org/CodeSystem/location-physical-type",
			Code:    "bu",
			Display: "Building",
		}},
	}
}

// Validate checks the required canonical fields.
func (l *Location) Validate() error {
	if l.ResourceType != "Location" {
		return NewError(KindValidation, "resourceType must be Location")
	}
	if l.Name == "" {
		return NewError(KindValidation, "name is required")
	}
	switch l.Status {
	case StatusActive, StatusSuspended, StatusInactive:
	default:
		return NewError(KindValidation, fmt.Sprintf("invalid status %q", l.Status))
	}
	return nil
}

// VersionInt parses meta.versionId, defaulting to 1.
func (l *Location) VersionInt() int {
	if l.Meta == nil {
		return 1
	}
	v, err := strconv.Atoi(l.Meta.VersionID)
	if err != nil || v < 1 {
		return 1
	}
	return v
}

// BumpVersion increments meta.versionId and stamps meta.lastUpdated.
func (l *Location) BumpVersion(now time.Time) {
	if l.Meta == nil {
		l.Meta = &fhir.Meta{VersionID: "1"}
	}
	l.Meta.VersionID = strconv.Itoa(l.VersionInt() + 1)
	l.Meta.LastUpdated = now
}

// EnsureProfile adds the restroom profile URI to meta.profile once.
func (l *Location) EnsureProfile() {
	if l.Meta == nil {
		l.Meta = &fhir.Meta{}
	}
	for _, p := range l.Meta.Profile {
		if p == ProfileRestroomLocation {
			return
		}
	}
	l.Meta.Profile = append(l.Meta.Profile, ProfileRestroomLocation)
}

// identifierValue returns the value of the identifier with one of the given
// systems, or "".
func (l *Location) identifierValue(systems ...string) string {
	for _, ident := range l.Identifier {
		for _, sys := range systems {
			if ident.System == sys {
				return ident.Value
			}
		}
	}
	return ""
}

// ExternalID returns the legacy/production primary key, or "".
func (l *Location) ExternalID() string {
	return l.identifierValue(SystemLegacyAPI, SystemProductionID)
}

// EditID returns the independent edit identifier, or "".
func (l *Location) EditID() string {
	return l.identifierValue(SystemEditID)
}

// SetIdentifier replaces or appends the identifier for the given system.
func (l *Location) SetIdentifier(use, system, value string) {
	for i := range l.Identifier {
		if l.Identifier[i].System == system {
			l.Identifier[i].Use = use
			l.Identifier[i].Value = value
			return
		}
	}
	l.Identifier = append(l.Identifier, fhir.Identifier{Use: use, System: system, Value: value})
}

// AccessibilityFeatures reads the accessibility extension, defaulting all
// flags to false when absent.
func (l *Location) AccessibilityFeatures() AccessibilityFeatures {
	ext := fhir.FindExtension(l.Extension, ExtAccessibility)
	return AccessibilityFeatures{
		Accessible:    fhir.SubBool(ext, subWheelchair),
		Unisex:        fhir.SubBool(ext, subUnisex),
		ChangingTable: fhir.SubBool(ext, subChangingTable),
	}
}

// SetAccessibilityFeatures writes the accessibility extension, replacing
// any existing block for its URI.
func (l *Location) SetAccessibilityFeatures(f AccessibilityFeatures) {
	l.Extension = fhir.SetExtension(l.Extension, fhir.Extension{
		URL: ExtAccessibility,
		Extension: []fhir.Extension{
			{URL: subWheelchair, ValueBoolean: fhir.Bool(f.Accessible)},
			{URL: subUnisex, ValueBoolean: fhir.Bool(f.Unisex)},
			{URL: subChangingTable, ValueBoolean: fhir.Bool(f.ChangingTable)},
		},
	})
}

// FacilityDetails reads the facility-details extension.
func (l *Location) FacilityDetails() FacilityDetails {
	ext := fhir.FindExtension(l.Extension, ExtFacilityDetails)
	return FacilityDetails{
		Directions: fhir.SubString(ext, subDirections),
		Comments:   fhir.SubString(ext, subComments),
	}
}

// SetFacilityDetails writes the facility-details extension. Only non-empty
// fields are emitted; when both are empty the block is omitted entirely.
func (l *Location) SetFacilityDetails(d FacilityDetails) {
	if d.Directions == "" && d.Comments == "" {
		return
	}
	var subs []fhir.Extension
	if d.Directions != "" {
		subs = append(subs, fhir.Extension{URL: subDirections, ValueString: d.Directions})
	}
	if d.Comments != "" {
		subs = append(subs, fhir.Extension{URL: subComments, ValueString: d.Comments})
	}
	l.Extension = fhir.SetExtension(l.Extension, fhir.Extension{URL: ExtFacilityDetails, Extension: subs})
}

// Rating reads the community-rating extension, defaulting counts to 0.
func (l *Location) Rating() CommunityRating {
	ext := fhir.FindExtension(l.Extension, ExtCommunityRating)
	return CommunityRating{
		Upvotes:   fhir.SubInt(ext, subUpvotes),
		Downvotes: fhir.SubInt(ext, subDownvotes),
	}
}

// SetRating writes the community-rating extension.
func (l *Location) SetRating(r CommunityRating) {
	l.Extension = fhir.SetExtension(l.Extension, fhir.Extension{
		URL: ExtCommunityRating,
		Extension: []fhir.Extension{
			{URL: subUpvotes, ValueInteger: fhir.Int(r.Upvotes)},
			{URL: subDownvotes, ValueInteger: fhir.Int(r.Downvotes)},
		},
	})
}

// AddVote increments the requested counter by one, creating the rating
// extension when missing.
func (l *Location) AddVote(kind VoteKind) {
	r := l.Rating()
	switch kind {
	case VoteDown:
		r.Downvotes++
	default:
		r.Upvotes++
	}
	l.SetRating(r)
}

// ApprovalStatus reads the approval-status extension.
func (l *Location) ApprovalStatus() ApprovalStatus {
	ext := fhir.FindExtension(l.Extension, ExtApprovalStatus)
	return ApprovalStatus{
		Approved:      fhir.SubBool(ext, subApproved),
		FromHydration: fhir.SubBool(ext, subFromHydration),
	}
}

// SetApprovalStatus writes the approval-status extension.
func (l *Location) SetApprovalStatus(a ApprovalStatus) {
	l.Extension = fhir.SetExtension(l.Extension, fhir.Extension{
		URL: ExtApprovalStatus,
		Extension: []fhir.Extension{
			{URL: subApproved, ValueBoolean: fhir.Bool(a.Approved)},
			{URL: subFromHydration, ValueBoolean: fhir.Bool(a.FromHydration)},
		},
	})
}

// CreatedAt reads the created-at timestamp extension.
func (l *Location) CreatedAt() (time.Time, bool) {
	ext := fhir.FindExtension(l.Extension, ExtTimestamps)
	raw := fhir.SubDateTime(ext, subCreatedAt)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetCreatedAt writes the timestamps extension.
func (l *Location) SetCreatedAt(t time.Time) {
	l.Extension = fhir.SetExtension(l.Extension, fhir.Extension{
		URL: ExtTimestamps,
		Extension: []fhir.Extension{
			{URL: subCreatedAt, ValueDateTime: t.UTC().Format(time.RFC3339)},
		},
	})
}

// FullAddress renders the address as a single geocodable line. The default
// country is left off to keep the common case short.
func (l *Location) FullAddress() string {
	if l.Address == nil {
		return ""
	}
	var parts []string
	if len(l.Address.Line) > 0 && l.Address.Line[0] != "" {
		parts = append(parts, l.Address.Line[0])
	}
	if l.Address.City != "" {
		parts = append(parts, l.Address.City)
	}
	if l.Address.State != "" {
		parts = append(parts, l.Address.State)
	}
	if l.Address.Country != "" && l.Address.Country != "United States" {
		parts = append(parts, l.Address.Country)
	}
	return strings.Join(parts, ", ")
}

// DistanceFrom computes the Haversine distance from (lat,lng) in miles,
// or kilometers when inKilometers is set. Returns false when the location
// has no resolvable position.
func (l *Location) DistanceFrom(lat, lng float64, inKilometers bool) (float64, bool) {
	if l.Position == nil {
		return 0, false
	}
	r := float64(earthRadiusMiles)
	if inKilometers {
		r = earthRadiusKm
	}
	d := haversine(lat, lng, l.Position.Latitude, l.Position.Longitude, r)
	return math.Round(d*100) / 100, true
}

func haversine(lat1, lng1, lat2, lng2, radius float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return radius * c
}

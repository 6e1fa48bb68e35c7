// Package fhir holds the minimal FHIR R4 datatypes this service uses to
// represent restroom locations. It intentionally models only the slice of
// the standard the directory needs: base resource metadata, identifiers,
// addresses, positions, and the URI-keyed nested extensions that encode
// restroom-specific facts.
package fhir

import (
	"time"
)

type Meta struct {
	VersionID   string    `json:"versionId,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
	Profile     []string  `json:"profile,omitempty"`
	Source      string    `json:"source,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Identifier struct {
	Use    string `json:"use,omitempty"`
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

type Address struct {
	Use        string   `json:"use,omitempty"`
	Type       string   `json:"type,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
}

// Position holds plain decimal-degree coordinates (FHIR Location.position).
type Position struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
}

// Extension is a FHIR extension. Complex extensions nest sub-extensions
// under Extension; simple ones carry exactly one value[x] field.
type Extension struct {
	URL           string      `json:"url"`
	ValueString   string      `json:"valueString,omitempty"`
	ValueBoolean  *bool       `json:"valueBoolean,omitempty"`
	ValueInteger  *int        `json:"valueInteger,omitempty"`
	ValueDateTime string      `json:"valueDateTime,omitempty"`
	Extension     []Extension `json:"extension,omitempty"`
}

// Bool returns a pointer suitable for Extension.ValueBoolean.
func Bool(b bool) *bool { return &b }

// Int returns a pointer suitable for Extension.ValueInteger.
func Int(i int) *int { return &i }

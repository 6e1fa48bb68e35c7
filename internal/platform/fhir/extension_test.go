package fhir

import "testing"

func TestSetExtension_ReplacesByURL(t *testing.T) {
	exts := []Extension{
		{URL: "http://example.org/a", ValueString: "one"},
		{URL: "http://example.org/b", ValueString: "two"},
	}

	exts = SetExtension(exts, Extension{URL: "http://example.org/a", ValueString: "replaced"})
	if len(exts) != 2 {
		t.Fatalf("expected 2 extensions, got %d", len(exts))
	}
	if exts[0].ValueString != "replaced" {
		t.Errorf("expected replacement, got %q", exts[0].ValueString)
	}

	exts = SetExtension(exts, Extension{URL: "http://example.org/c", ValueString: "three"})
	if len(exts) != 3 {
		t.Fatalf("expected append for new URL, got %d extensions", len(exts))
	}
}

func TestSubAccessors_Defaults(t *testing.T) {
	if SubBool(nil, "x") {
		t.Error("SubBool on nil should be false")
	}
	if SubInt(nil, "x") != 0 {
		t.Error("SubInt on nil should be 0")
	}
	if SubString(nil, "x") != "" {
		t.Error("SubString on nil should be empty")
	}

	ext := &Extension{
		URL: "http://example.org/block",
		Extension: []Extension{
			{URL: "flag", ValueBoolean: Bool(true)},
			{URL: "count", ValueInteger: Int(7)},
			{URL: "note", ValueString: "hello"},
			{URL: "when", ValueDateTime: "2024-01-02T03:04:05Z"},
		},
	}

	if !SubBool(ext, "flag") {
		t.Error("expected flag=true")
	}
	if SubInt(ext, "count") != 7 {
		t.Errorf("expected count=7, got %d", SubInt(ext, "count"))
	}
	if SubString(ext, "note") != "hello" {
		t.Errorf("expected note=hello, got %q", SubString(ext, "note"))
	}
	if SubDateTime(ext, "when") != "2024-01-02T03:04:05Z" {
		t.Errorf("unexpected datetime %q", SubDateTime(ext, "when"))
	}
	if SubBool(ext, "missing") {
		t.Error("missing sub-extension should default to false")
	}
}

func TestFindExtension(t *testing.T) {
	exts := []Extension{{URL: "a"}, {URL: "b"}}
	if FindExtension(exts, "b") == nil {
		t.Error("expected to find b")
	}
	if FindExtension(exts, "c") != nil {
		t.Error("expected nil for unknown URL")
	}
}

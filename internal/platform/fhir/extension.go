package fhir

// FindExtension returns the extension with the given URL, or nil.
func FindExtension(exts []Extension, url string) *Extension {
	for i := range exts {
		if exts[i].URL == url {
			return &exts[i]
		}
	}
	return nil
}

// SetExtension replaces the extension with the same URL, or appends it.
// At most one extension per URL survives a call.
func SetExtension(exts []Extension, ext Extension) []Extension {
	for i := range exts {
		if exts[i].URL == ext.URL {
			exts[i] = ext
			return exts
		}
	}
	return append(exts, ext)
}

// SubBool reads a valueBoolean sub-extension, defaulting to false.
func SubBool(ext *Extension, url string) bool {
	if ext == nil {
		return false
	}
	sub := FindExtension(ext.Extension, url)
	if sub == nil || sub.ValueBoolean == nil {
		return false
	}
	return *sub.ValueBoolean
}

// SubInt reads a valueInteger sub-extension, defaulting to 0.
func SubInt(ext *Extension, url string) int {
	if ext == nil {
		return 0
	}
	sub := FindExtension(ext.Extension, url)
	if sub == nil || sub.ValueInteger == nil {
		return 0
	}
	return *sub.ValueInteger
}

// SubString reads a valueString sub-extension, defaulting to "".
func SubString(ext *Extension, url string) string {
	if ext == nil {
		return ""
	}
	sub := FindExtension(ext.Extension, url)
	if sub == nil {
		return ""
	}
	return sub.ValueString
}

// SubDateTime reads a valueDateTime sub-extension, defaulting to "".
func SubDateTime(ext *Extension, url string) string {
	if ext == nil {
		return ""
	}
	sub := FindExtension(ext.Extension, url)
	if sub == nil {
		return ""
	}
	return sub.ValueDateTime
}

// Package canonicalization provides Darwin Core column-name normalization
// and deterministic key derivation for the BDQ engine.
package canonicalization

import "strings"

// LocalName strips a Darwin Core namespace prefix (e.g. "dwc:") from a
// column name and lowercases the result, producing the form used for
// case-insensitive, namespace-tolerant header lookups.
//
// Examples:
//   - LocalName("dwc:countryCode") -> "countrycode"
//   - LocalName("countryCode")     -> "countrycode"
//   - LocalName("dc:modified")     -> "modified"
//
// Darwin Core terms may appear with any namespace prefix in practice
// (dwc, dcterms, dc, ...); only the local (unprefixed) name carries
// semantic meaning for column resolution, so the prefix is discarded
// rather than validated.
func LocalName(column string) string {
	name := column
	if idx := strings.LastIndex(column, ":"); idx >= 0 {
		name = column[idx+1:]
	}

	return strings.ToLower(strings.TrimSpace(name))
}

// HasNamespace reports whether column carries an explicit "prefix:" form.
func HasNamespace(column string) bool {
	return strings.Contains(column, ":")
}

package dataset

import "strings"

// candidateDelimiters lists the delimiters the sniffer recognizes, most
// distinctive first: a tab or pipe in a header line is rarely incidental,
// while a comma or semicolon can appear inside a quoted value too — but
// sniffing only looks at the raw header line, so this order is a
// reasonable tie-break rather than a guarantee.
var candidateDelimiters = []rune{'\t', ',', ';', '|'}

// defaultDelimiter is the fallback when the header line contains none of
// the recognized separators, and the tie-break when detection is
// ambiguous (§4.B: "ties resolved to comma").
const defaultDelimiter = ','

// SniffDelimiter detects the field delimiter by scanning headerLine for
// the first occurrence of any recognized separator (tab, comma, semicolon,
// pipe). Shared between the Dataset Reader and the Registry loader, since
// both consume "a byte stream of tabular data" and need the same
// detection logic.
func SniffDelimiter(headerLine string) rune {
	earliestIdx := -1
	earliest := defaultDelimiter

	for _, d := range candidateDelimiters {
		idx := strings.IndexRune(headerLine, d)
		if idx < 0 {
			continue
		}

		if earliestIdx == -1 || idx < earliestIdx || (idx == earliestIdx && d == defaultDelimiter) {
			earliestIdx = idx
			earliest = d
		}
	}

	if earliestIdx == -1 {
		return defaultDelimiter
	}

	return earliest
}

// Package citations extracts source citations from retrieved chunks.
package citations

import "strings"

// Chunk is the slice of a retrieval match that citation extraction needs.
type Chunk struct {
	// Citation is the citation stored in the chunk's metadata, if any.
	Citation string

	// Text is the chunk body, scanned as a fallback when metadata carries
	// no citation.
	Text string
}

// Extract returns the citations for a set of chunks in first-seen order,
// deduplicated case-insensitively with whitespace collapsed.
//
// The metadata citation wins when present. Otherwise the chunk text is
// scanned for lines prefixed "citation:" or "source:", which is how older
// ingesters embedded provenance directly in the text.
func Extract(chunks []Chunk) []string {
	var out []string
	seen := make(map[string]struct{})

	add := func(c string) {
		c = collapse(c)
		if c == "" {
			return
		}
		key := strings.ToLower(c)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}

	for _, chunk := range chunks {
		if chunk.Citation != "" {
			add(chunk.Citation)
			continue
		}
		for _, c := range fromText(chunk.Text) {
			add(c)
		}
	}
	return out
}

// fromText scans chunk text for provenance lines.
func fromText(text string) []string {
	var found []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		for _, prefix := range []string{"citation:", "source:"} {
			if strings.HasPrefix(lower, prefix) {
				if c := strings.TrimSpace(line[len(prefix):]); c != "" {
					found = append(found, c)
				}
				break
			}
		}
	}
	return found
}

// collapse trims and normalizes internal whitespace runs to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

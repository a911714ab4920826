package mesh

import "strings"

// MatchStock picks the line among lines that a request for item tagged with
// types should draw from or credit into. Lookup order:
//
//  1. exact item name, ignoring case and surrounding space
//  2. a line whose tag set intersects types
//  3. an untagged line whose item name contains one of types as a keyword
//
// Names are never matched by containment: "Insulin Syringes" must not draw
// from "Insulin". Within a tier the first line in order wins. Returns nil
// when nothing matches.
func MatchStock(lines []*SupplyStock, item string, types []ResourceType) *SupplyStock {
	want := normalizeName(item)
	if want == "" {
		return nil
	}
	for _, line := range lines {
		if normalizeName(line.Item) == want {
			return line
		}
	}

	if len(types) == 0 {
		return nil
	}
	for _, line := range lines {
		for _, t := range types {
			if line.HasTag(t) {
				return line
			}
		}
	}

	for _, line := range lines {
		if len(line.Tags) > 0 {
			continue
		}
		name := normalizeName(line.Item)
		for _, t := range types {
			if strings.Contains(name, strings.ToLower(string(t))) {
				return line
			}
		}
	}
	return nil
}

package carriers

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// uspsStepLabels maps the last comma segment of a USPS step description,
// lower-cased, to its short label.
var uspsStepLabels = map[string]string{
	"usps picked up item":                             "Picked Up",
	"usps awaiting item":                              "Awaiting Item",
	"arrived at usps regional origin facility":        "At Facility",
	"arrived at usps regional facility":               "At Facility",
	"departed usps regional facility":                 "Left Facility",
	"departed post office":                            "Left Office",
	"usps in possession of item":                      "Possessed",
	"arrived at post office":                          "At Office",
	"out for delivery":                                "Delivering",
	"in transit to next facility":                     "In Transit",
	"arriving on time":                                "Package On Time",
	"accepted at usps origin facility":                "Accepted",
	"arrived at usps facility":                        "At Facility",
	"departed usps facility":                          "Left Facility",
	"package acceptance pending":                      "Accepted",
	"garage / other door / other location at address": "Delivered",
}

var upsMilestoneLabels = map[string]string{
	"we have your package": "Has Package",
}

// NormalizeStatus turns a raw USPS step description into a short label.
// Anything mentioning an expected delivery is "Delivering". Otherwise only
// the text after the last ", " is classified, surrounding whitespace
// ignored, and unknown phrases are title-cased.
func NormalizeStatus(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(strings.ToLower(raw), "expected delivery") {
		return "Delivering"
	}

	segments := strings.Split(raw, ", ")
	phrase := strings.ToLower(strings.TrimSpace(segments[len(segments)-1]))
	if label, ok := uspsStepLabels[phrase]; ok {
		return label
	}
	return titleCase(phrase)
}

// NormalizeMilestone maps a UPS milestone name to a short label, title-casing
// names it does not know.
func NormalizeMilestone(raw string) string {
	if label, ok := upsMilestoneLabels[strings.ToLower(raw)]; ok {
		return label
	}
	return titleCase(raw)
}

// titleCase upper-cases the first letter of each space-separated word and
// lower-cases the rest.
func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		lower := strings.ToLower(w)
		r, size := utf8.DecodeRuneInString(lower)
		words[i] = string(unicode.ToUpper(r)) + lower[size:]
	}
	return strings.Join(words, " ")
}

package consensus

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

/*
Unit handling

Numeric candidates are parsed into (value, unit) and converted to the
field rule's canonical unit before clustering. Conversion tables are
flat: every unit maps to a base factor within its dimension.
*/

// unitFactors maps a normalized unit alias to (dimension, factor-to-base).
// Bases: mass -> g, length -> mm, frequency -> hz, duration -> ms.
var unitFactors = map[string]struct {
	dimension string
	factor    float64
}{
	"g":     {"mass", 1},
	"gram":  {"mass", 1},
	"grams": {"mass", 1},
	"kg":    {"mass", 1000},
	"oz":    {"mass", 28.349523125},
	"ounce": {"mass", 28.349523125},
	"lb":    {"mass", 453.59237},
	"lbs":   {"mass", 453.59237},

	"mm":         {"length", 1},
	"millimeter": {"length", 1},
	"cm":         {"length", 10},
	"m":          {"length", 1000},
	"in":         {"length", 25.4},
	"inch":       {"length", 25.4},
	"inches":     {"length", 25.4},
	"\"":         {"length", 25.4},

	"hz":  {"frequency", 1},
	"khz": {"frequency", 1000},
	"mhz": {"frequency", 1000000},
	"ghz": {"frequency", 1000000000},

	"ms":          {"duration", 1},
	"millisecond": {"duration", 1},
	"s":           {"duration", 1000},
	"sec":         {"duration", 1000},
	"h":           {"duration", 3600000},
	"hr":          {"duration", 3600000},
	"hrs":         {"duration", 3600000},
	"hour":        {"duration", 3600000},
	"hours":       {"duration", 3600000},

	// Unitless count-like units: kept for parse, factor 1.
	"dpi":     {"count", 1},
	"cpi":     {"count", 1},
	"ips":     {"count", 1},
	"mah":     {"charge", 1},
	"buttons": {"count", 1},
}

var reNumber = regexp.MustCompile(`([-+]?\d+(?:[.,]\d+)?)\s*([a-zA-Z"]+)?`)

// ParseNumeric extracts the first numeric value and its unit from a raw
// string. "58 g" -> (58, "g"); "1,000 Hz" handles a thousands comma when
// the fragment after it is three digits.
func ParseNumeric(raw string) (value float64, unit string, ok bool) {
	match := reNumber.FindStringSubmatch(raw)
	if match == nil {
		return 0, "", false
	}
	number := match[1]
	if i := strings.IndexByte(number, ','); i >= 0 {
		if len(number)-i-1 == 3 {
			number = strings.Replace(number, ",", "", 1)
		} else {
			number = strings.Replace(number, ",", ".", 1)
		}
	}
	parsed, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, "", false
	}
	return parsed, strings.ToLower(strings.TrimSpace(match[2])), true
}

// ConvertTo converts (value, fromUnit) into the canonical unit.
// Same-dimension pairs convert by factor ratio; unknown or
// cross-dimension pairs return ok=false. An empty unit on either side
// passes the value through: unit-less claims assume the canonical unit.
func ConvertTo(value float64, fromUnit, canonicalUnit string) (float64, bool) {
	fromUnit = strings.ToLower(fromUnit)
	canonicalUnit = strings.ToLower(canonicalUnit)
	if canonicalUnit == "" || fromUnit == "" || fromUnit == canonicalUnit {
		return value, true
	}
	from, okFrom := unitFactors[fromUnit]
	to, okTo := unitFactors[canonicalUnit]
	if !okFrom || !okTo || from.dimension != to.dimension {
		return 0, false
	}
	return value * from.factor / to.factor, true
}

// RoundForType rounds integer-typed fields after conversion.
func RoundForType(value float64, integer bool) float64 {
	if integer {
		return math.Round(value)
	}
	return value
}

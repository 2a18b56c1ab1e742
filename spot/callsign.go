package spot

import (
	"regexp"
	"strings"
	"unicode"
)

var callsignPattern = regexp.MustCompile(`^[A-Z0-9]+(?:[/-][A-Z0-9#]+)*$`)

const (
	minCallLength = 3
	maxCallLength = 15
)

// NormalizeCallsign uppercases the string, trims whitespace, maps dots to
// slashes and removes a trailing slash.
func NormalizeCallsign(call string) string {
	normalized := strings.ToUpper(strings.TrimSpace(call))
	normalized = strings.ReplaceAll(normalized, ".", "/")
	normalized = strings.TrimSuffix(normalized, "/")
	return strings.TrimSpace(normalized)
}

// IsValidCallsign applies format checks to make sure it looks like an amateur call.
func IsValidCallsign(call string) bool {
	normalized := NormalizeCallsign(call)
	if len(normalized) < minCallLength || len(normalized) > maxCallLength {
		return false
	}
	if strings.IndexFunc(normalized, unicode.IsDigit) < 0 {
		return false
	}
	return callsignPattern.MatchString(normalized)
}

// IsBeaconCall reports whether the normalized callsign ends with /B.
func IsBeaconCall(call string) bool {
	return strings.HasSuffix(NormalizeCallsign(call), "/B")
}

// IsSkimmerCall reports whether the spotter call carries the RBN "-#" marker.
func IsSkimmerCall(call string) bool {
	return strings.HasSuffix(strings.TrimSpace(call), "-#")
}

// CollapseSSID removes a numeric SSID so skimmer variants such as
// "W3LPL-2-#" and "W3LPL-#" are treated as one spotter.
func CollapseSSID(call string) string {
	call = strings.TrimSpace(call)
	if strings.HasSuffix(call, "-#") {
		return stripNumericSSID(strings.TrimSuffix(call, "-#")) + "-#"
	}
	return stripNumericSSID(call)
}

func stripNumericSSID(call string) string {
	idx := strings.LastIndexByte(call, '-')
	if idx <= 0 || idx == len(call)-1 {
		return call
	}
	for _, r := range call[idx+1:] {
		if r < '0' || r > '9' {
			return call
		}
	}
	return call[:idx]
}

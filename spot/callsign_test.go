package spot

import "testing"

func TestNormalizeCallsignReplacesDot(t *testing.T) {
	input := "W6.UT5UF"
	want := "W6/UT5UF"
	if got := NormalizeCallsign(input); got != want {
		t.Fatalf("NormalizeCallsign(%q) = %q, want %q", input, got, want)
	}
}

func TestNormalizeCallsignTrimsTrailingSlash(t *testing.T) {
	if got := NormalizeCallsign(" k1abc/ "); got != "K1ABC" {
		t.Fatalf("NormalizeCallsign = %q, want K1ABC", got)
	}
}

func TestIsValidCallsign(t *testing.T) {
	cases := map[string]bool{
		"K1ABC":            true,
		"W3LPL-#":          true,
		"JA1CTC.P":         true,
		"ABC/DEF":          false,
		"garbage":          false,
		"K1":               false,
		"K1ABCDEF/GHIJKL":  true,
		"K1ABCDEF/GHIJKLM": false,
	}
	for call, want := range cases {
		if got := IsValidCallsign(call); got != want {
			t.Fatalf("IsValidCallsign(%q) = %v, want %v", call, got, want)
		}
	}
}

func TestCollapseSSID(t *testing.T) {
	cases := map[string]string{
		"W3LPL-2-#": "W3LPL-#",
		"W3LPL-#":   "W3LPL-#",
		"DL1ABC-12": "DL1ABC",
		"DL1ABC-P":  "DL1ABC-P",
	}
	for in, want := range cases {
		if got := CollapseSSID(in); got != want {
			t.Fatalf("CollapseSSID(%q) = %q, want %q", in, got, want)
		}
	}
}

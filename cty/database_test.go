package cty

import (
	"context"
	"strings"
	"testing"

	"dxlistener/listener"
	"dxlistener/spot"
)

const samplePlist = `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
<key>K1ABC</key>
	<dict>
		<key>Country</key><string>Exactland</string>
		<key>Prefix</key><string>K1ABC</string>
		<key>Continent</key><string>NA</string>
		<key>ExactCallsign</key><true/>
	</dict>
<key>K</key>
	<dict>
		<key>Country</key><string>United States</string>
		<key>Prefix</key><string>K</string>
		<key>ADIF</key><integer>291</integer>
		<key>CQZone</key><integer>5</integer>
		<key>ITUZone</key><integer>8</integer>
		<key>Continent</key><string>NA</string>
		<key>Latitude</key><real>42.36</real>
		<key>Longitude</key><real>-71.06</real>
		<key>ExactCallsign</key><false/>
	</dict>
<key>DL</key>
	<dict>
		<key>Country</key><string>Fed. Rep. of Germany</string>
		<key>Prefix</key><string>DL</string>
		<key>ADIF</key><integer>230</integer>
		<key>CQZone</key><integer>14</integer>
		<key>Continent</key><string>EU</string>
		<key>ExactCallsign</key><false/>
	</dict>
<key>ea8</key>
	<dict>
		<key>Country</key><string>Canary Islands</string>
		<key>Prefix</key><string>EA8</string>
		<key>Continent</key><string>AF</string>
		<key>ExactCallsign</key><false/>
	</dict>
</dict>
</plist>`

func loadSample(t *testing.T) *Database {
	t.Helper()
	db, err := LoadFromReader(strings.NewReader(samplePlist))
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	return db
}

func TestLookup(t *testing.T) {
	db := loadSample(t)
	cases := []struct {
		call    string
		country string
		ok      bool
	}{
		{"K1ABC", "Exactland", true},
		{"K1ABCD", "United States", true},
		{"W1AW", "", false},
		{"dl1xyz", "Fed. Rep. of Germany", true},
		{"DL1XYZ/P", "Fed. Rep. of Germany", true},
		{"DL1XYZ-2-#", "Fed. Rep. of Germany", true},
		{"EA8/DL1XYZ", "Canary Islands", true},
		{"9A1A", "", false},
	}
	for _, tc := range cases {
		e, ok := db.Lookup(tc.call)
		if ok != tc.ok || e.Country != tc.country {
			t.Fatalf("Lookup(%q) = %q %v, want %q %v", tc.call, e.Country, ok, tc.country, tc.ok)
		}
	}
}

func TestLookupCachesMisses(t *testing.T) {
	db := loadSample(t)
	db.Lookup("9A1A")
	db.Lookup("9A1A")
	st := db.Stats()
	if st.Lookups != 2 || st.CacheHits != 1 || st.Misses != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.Entries != 4 {
		t.Fatalf("expected 4 entries, got %d", st.Entries)
	}
}

func TestEnrichSink(t *testing.T) {
	db := loadSample(t)
	var got *spot.Spot
	sink := NewEnrichSink(db, listener.SinkFunc(func(s *spot.Spot) { got = s }))

	s := spot.NewSpot("DL1XYZ", "K3LR", 14025.0, "CW")
	if err := sink.Deliver(context.Background(), s); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if got == nil {
		t.Fatal("spot not forwarded")
	}
	if got.DXMetadata.Continent != "EU" || got.DXMetadata.CQZone != 14 {
		t.Fatalf("unexpected DX metadata %+v", got.DXMetadata)
	}
	want := spot.CallMetadata{Continent: "NA", Country: "United States", CQZone: 5, ITUZone: 8, ADIF: 291, Grid: "FN42"}
	if got.DEMetadata != want {
		t.Fatalf("unexpected DE metadata %+v", got.DEMetadata)
	}
}

func TestNilDatabasePassesThrough(t *testing.T) {
	var db *Database
	s := spot.NewSpot("DL1XYZ", "K3LR", 14025.0, "CW")
	db.Enrich(s)
	if s.DXMetadata != (spot.CallMetadata{}) {
		t.Fatal("nil database must not touch metadata")
	}
	if _, ok := db.Lookup("K3LR"); ok {
		t.Fatal("nil database cannot resolve")
	}
}

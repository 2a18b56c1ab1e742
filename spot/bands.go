package spot

import "strings"

// BandInfo describes an amateur radio band by name and frequency range in kHz.
// CWEnd marks the top of the CW sub-band used for mode inference; Voice is the
// customary sideband above it.
type BandInfo struct {
	Name  string
	Min   float64
	Max   float64
	CWEnd float64
	Voice string
}

var bandTable = []BandInfo{
	{Name: "2200m", Min: 135.7, Max: 137.8, CWEnd: 137.8},
	{Name: "630m", Min: 472, Max: 479, CWEnd: 479},
	{Name: "160m", Min: 1800, Max: 2000, CWEnd: 1840, Voice: "LSB"},
	{Name: "80m", Min: 3500, Max: 4000, CWEnd: 3600, Voice: "LSB"},
	{Name: "60m", Min: 5330, Max: 5405, Voice: "USB"},
	{Name: "40m", Min: 7000, Max: 7300, CWEnd: 7040, Voice: "LSB"},
	{Name: "30m", Min: 10100, Max: 10150, CWEnd: 10150},
	{Name: "20m", Min: 14000, Max: 14350, CWEnd: 14070, Voice: "USB"},
	{Name: "17m", Min: 18068, Max: 18168, CWEnd: 18095, Voice: "USB"},
	{Name: "15m", Min: 21000, Max: 21450, CWEnd: 21070, Voice: "USB"},
	{Name: "12m", Min: 24890, Max: 24990, CWEnd: 24915, Voice: "USB"},
	{Name: "10m", Min: 28000, Max: 29700, CWEnd: 28070, Voice: "USB"},
	{Name: "6m", Min: 50000, Max: 54000, CWEnd: 50100, Voice: "USB"},
	{Name: "2m", Min: 144000, Max: 148000, CWEnd: 144100, Voice: "USB"},
	{Name: "1.25m", Min: 222000, Max: 225000, Voice: "USB"},
	{Name: "70cm", Min: 420000, Max: 450000, Voice: "USB"},
	{Name: "33cm", Min: 902000, Max: 928000, Voice: "USB"},
	{Name: "23cm", Min: 1240000, Max: 1300000, Voice: "USB"},
	{Name: "13cm", Min: 2300000, Max: 2310000, Voice: "USB"},
}

// NormalizeBand returns the canonical lowercase band identifier for the given
// label, appending "m" when the label is a bare number.
func NormalizeBand(label string) string {
	cleaned := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(label), " ", ""))
	for _, pair := range [][2]string{{"meters", "m"}, {"metres", "m"}, {"meter", "m"}, {"metre", "m"}} {
		cleaned = strings.ReplaceAll(cleaned, pair[0], pair[1])
	}
	if cleaned == "" {
		return ""
	}
	if last := cleaned[len(cleaned)-1]; last >= '0' && last <= '9' {
		cleaned += "m"
	}
	return cleaned
}

// IsValidBand returns true if the provided label corresponds to a known band.
func IsValidBand(label string) bool {
	normalized := NormalizeBand(label)
	for _, b := range bandTable {
		if b.Name == normalized {
			return true
		}
	}
	return false
}

// FrequencyBounds returns the minimum and maximum frequencies covered by the band table.
func FrequencyBounds() (min, max float64) {
	return bandTable[0].Min, bandTable[len(bandTable)-1].Max
}

// ModeForFrequency guesses a mode from the band plan when a line carries none:
// CW below the sub-band edge, the customary sideband above it.
func ModeForFrequency(freq float64) string {
	for _, b := range bandTable {
		if freq < b.Min || freq > b.Max {
			continue
		}
		if b.CWEnd > 0 && freq <= b.CWEnd {
			return "CW"
		}
		return b.Voice
	}
	return ""
}

// Package spot defines the spot record produced from DX cluster announcement
// lines: creation, parsing, hashing for dedup, JSON encoding and the band plan.
package spot

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
)

// SourceType identifies what kind of station produced a spot.
type SourceType string

const (
	SourceHuman   SourceType = "HUMAN"   // Spot typed by an operator on a cluster node
	SourceSkimmer SourceType = "SKIMMER" // Automated skimmer report (RBN-style "CALL-#")
)

// Spot represents one parsed cluster announcement.
type Spot struct {
	DXCall     string       `json:"dx"`             // Station being spotted (e.g., "W1XYZ")
	DECall     string       `json:"de"`             // Station reporting the spot (e.g., "K1ABC")
	Frequency  float64      `json:"freq"`           // Frequency in kHz (e.g., 14025.0)
	Band       string       `json:"band"`           // Band (e.g., "20m")
	Mode       string       `json:"mode,omitempty"` // Mode (e.g., "CW", "SSB", "FT8")
	Report     int          `json:"report,omitempty"`
	HasReport  bool         `json:"has_report,omitempty"`
	Speed      int          `json:"wpm,omitempty"` // CW speed reported by skimmers
	Time       time.Time    `json:"time"`
	Comment    string       `json:"comment,omitempty"`
	Grid       string       `json:"grid,omitempty"` // Locator appended after the time field
	SourceType SourceType   `json:"source"`
	SourceNode string       `json:"node,omitempty"` // Cluster the spot was received from
	IsBeacon   bool         `json:"beacon,omitempty"`
	DXMetadata CallMetadata `json:"dx_meta"`
	DEMetadata CallMetadata `json:"de_meta"`
}

// CallMetadata stores geographic metadata for a callsign.
type CallMetadata struct {
	Continent string `json:"continent,omitempty"`
	Country   string `json:"country,omitempty"`
	CQZone    int    `json:"cq_zone,omitempty"`
	ITUZone   int    `json:"itu_zone,omitempty"`
	ADIF      int    `json:"adif,omitempty"`
	Grid      string `json:"grid,omitempty"` // Square of the entity's reference point
}

// NewSpot creates a spot with normalized calls, band and current time.
func NewSpot(dxCall, deCall string, freq float64, mode string) *Spot {
	freq = roundFrequencyTo100Hz(freq)
	s := &Spot{
		DXCall:     NormalizeCallsign(dxCall),
		DECall:     NormalizeCallsign(deCall),
		Frequency:  freq,
		Mode:       strings.ToUpper(strings.TrimSpace(mode)),
		Band:       FreqToBand(freq),
		Time:       time.Now().UTC(),
		SourceType: SourceHuman,
	}
	s.IsBeacon = IsBeaconCall(s.DXCall)
	return s
}

// roundFrequencyTo100Hz normalizes a kHz value to the nearest 100 Hz (0.1 kHz).
func roundFrequencyTo100Hz(freqKHz float64) float64 {
	// Half-up rounding; banker's rounding would split .x5 boundaries.
	return math.Floor(freqKHz*10+0.5) / 10
}

// Hash32 returns a 32-bit hash for deduplication. The hash covers the time
// truncated to the minute, the frequency truncated to whole kHz, and both
// calls in fixed 12-byte slots, so the same report relayed by two clusters
// hashes identically.
func (s *Spot) Hash32() uint32 {
	var buf [36]byte
	t := s.Time.Truncate(time.Minute).Unix()
	binary.LittleEndian.PutUint64(buf[0:8], uint64(t))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(s.Frequency))
	writeFixedCall(buf[12:24], s.DECall)
	writeFixedCall(buf[24:36], s.DXCall)
	return uint32(xxh3.Hash(buf[:]))
}

func writeFixedCall(dst []byte, call string) {
	n := copy(dst, call)
	for ; n < len(dst); n++ {
		dst[n] = 0
	}
}

// FreqToBand maps a frequency in kHz to its band name, or "???" when outside
// the band plan.
func FreqToBand(freq float64) string {
	for _, band := range bandTable {
		if freq >= band.Min && freq <= band.Max {
			return band.Name
		}
	}
	return "???"
}

// IsValid performs basic validation on the spot.
func (s *Spot) IsValid() bool {
	if s == nil || s.DXCall == "" || s.DECall == "" {
		return false
	}
	minFreq, maxFreq := FrequencyBounds()
	return s.Frequency >= minFreq && s.Frequency <= maxFreq
}

// String returns a compact, human-readable representation.
func (s *Spot) String() string {
	mode := s.Mode
	if mode == "" {
		mode = "-"
	}
	return fmt.Sprintf("%s %-10s %9.1f %-5s %-4s de %-10s %s",
		s.Time.UTC().Format("1504Z"), s.DXCall, s.Frequency, s.Band, mode, s.DECall, s.Comment)
}

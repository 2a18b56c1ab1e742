package spot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseError reports why a cluster line could not be turned into a spot.
// Callers treat it as "not a spot" and drop the line.
type ParseError struct {
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("spot: %s: %q", e.Reason, e.Line)
}

const spotPrefix = "DX de "

var knownModes = map[string]struct{}{
	"CW": {}, "SSB": {}, "USB": {}, "LSB": {}, "AM": {}, "FM": {},
	"RTTY": {}, "FT8": {}, "FT4": {}, "PSK31": {}, "PSK63": {}, "BPSK": {},
	"JT65": {}, "JT9": {}, "WSPR": {}, "MSK144": {}, "Q65": {}, "JS8": {},
	"SSTV": {}, "DIGI": {},
}

// Parse converts one cleaned cluster line into a spot, using the current time
// to resolve the HHMMZ field.
func Parse(line string) (*Spot, error) {
	return ParseAt(line, time.Now().UTC())
}

// ParseAt is Parse with an explicit reference time. Two layouts are accepted:
//
//	DX de K1ABC:     14025.0  W1XYZ        CW 599 up 2               1234Z FN42
//	DX de W3LPL-#:   14074.0  K1ABC        FT8 -5 dB                 2359Z
//
// The second (skimmer) layout carries "NN dB" and optionally "NN WPM" after
// the mode; both are lifted into Report and Speed.
func ParseAt(line string, now time.Time) (*Spot, error) {
	if len(line) < len(spotPrefix) || !strings.EqualFold(line[:len(spotPrefix)], spotPrefix) {
		return nil, &ParseError{Line: line, Reason: "missing DX de prefix"}
	}
	rest := line[len(spotPrefix):]
	colon := strings.IndexByte(rest, ':')
	if colon <= 0 {
		return nil, &ParseError{Line: line, Reason: "missing spotter terminator"}
	}
	deRaw := strings.TrimSpace(rest[:colon])
	fields := strings.Fields(rest[colon+1:])
	if len(fields) < 2 {
		return nil, &ParseError{Line: line, Reason: "too few fields"}
	}
	freq, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || freq <= 0 {
		return nil, &ParseError{Line: line, Reason: "bad frequency"}
	}
	if !IsValidCallsign(deRaw) {
		return nil, &ParseError{Line: line, Reason: "bad spotter call"}
	}
	if !IsValidCallsign(fields[1]) {
		return nil, &ParseError{Line: line, Reason: "bad dx call"}
	}

	tail := fields[2:]
	var grid, clock string
	if n := len(tail); n >= 2 && isClock(tail[n-2]) && isGrid(tail[n-1]) {
		clock, grid = tail[n-2], strings.ToUpper(tail[n-1])
		tail = tail[:n-2]
	} else if n >= 1 && isClock(tail[n-1]) {
		clock = tail[n-1]
		tail = tail[:n-1]
	}

	mode := ""
	if len(tail) > 0 {
		if _, ok := knownModes[strings.ToUpper(tail[0])]; ok {
			mode = strings.ToUpper(tail[0])
			tail = tail[1:]
		}
	}

	s := NewSpot(fields[1], deRaw, freq, mode)
	if IsSkimmerCall(deRaw) {
		s.SourceType = SourceSkimmer
		s.DECall = CollapseSSID(s.DECall)
	}
	if len(tail) >= 2 && strings.EqualFold(tail[1], "dB") {
		if report, err := strconv.Atoi(tail[0]); err == nil {
			s.Report = report
			s.HasReport = true
			tail = tail[2:]
		}
	}
	if len(tail) >= 2 && strings.EqualFold(tail[1], "WPM") {
		if wpm, err := strconv.Atoi(tail[0]); err == nil {
			s.Speed = wpm
			tail = tail[2:]
		}
	}
	s.Comment = strings.Join(tail, " ")
	if s.Mode == "" {
		s.Mode = modeFromComment(tail)
	}
	if s.Mode == "" {
		s.Mode = ModeForFrequency(s.Frequency)
	}
	s.Grid = grid
	if clock != "" {
		s.Time = resolveClock(clock, now)
	} else {
		s.Time = now.UTC()
	}
	s.IsBeacon = s.IsBeacon || commentMentionsBeacon(s.Comment)
	return s, nil
}

func modeFromComment(tokens []string) string {
	for _, tok := range tokens {
		upper := strings.ToUpper(strings.Trim(tok, ",.;"))
		if _, ok := knownModes[upper]; ok {
			return upper
		}
	}
	return ""
}

func commentMentionsBeacon(comment string) bool {
	upper := strings.ToUpper(comment)
	return strings.Contains(upper, "NCDXF") || strings.Contains(upper, "BEACON")
}

// isClock matches the HHMMZ time field.
func isClock(tok string) bool {
	if len(tok) != 5 || (tok[4] != 'Z' && tok[4] != 'z') {
		return false
	}
	for i := 0; i < 4; i++ {
		if tok[i] < '0' || tok[i] > '9' {
			return false
		}
	}
	return true
}

// isGrid matches a 4 or 6 character Maidenhead locator.
func isGrid(tok string) bool {
	if len(tok) != 4 && len(tok) != 6 {
		return false
	}
	up := strings.ToUpper(tok)
	if up[0] < 'A' || up[0] > 'R' || up[1] < 'A' || up[1] > 'R' {
		return false
	}
	if up[2] < '0' || up[2] > '9' || up[3] < '0' || up[3] > '9' {
		return false
	}
	if len(up) == 6 && (up[4] < 'A' || up[4] > 'X' || up[5] < 'A' || up[5] > 'X') {
		return false
	}
	return true
}

// resolveClock combines HHMMZ with the reference date. Spots carry no date, so
// a time more than 12 hours ahead of now belongs to the previous day and one
// more than 12 hours behind belongs to the next.
func resolveClock(clock string, now time.Time) time.Time {
	now = now.UTC()
	hour, err1 := strconv.Atoi(clock[0:2])
	min, err2 := strconv.Atoi(clock[2:4])
	if err1 != nil || err2 != nil || hour > 23 || min > 59 {
		return now
	}
	year, month, day := now.Date()
	t := time.Date(year, month, day, hour, min, 0, 0, time.UTC)
	if t.Sub(now) > 12*time.Hour {
		t = t.AddDate(0, 0, -1)
	} else if now.Sub(t) > 12*time.Hour {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

package agent

import (
	"regexp"
	"strconv"
	"strings"
)

// MarkerKind identifies which progress marker a line carried.
type MarkerKind int

const (
	MarkerNone MarkerKind = iota
	MarkerDuration
	MarkerPosition
)

func (k MarkerKind) String() string {
	switch k {
	case MarkerDuration:
		return "duration"
	case MarkerPosition:
		return "position"
	default:
		return "none"
	}
}

// Marker is the result of parsing one diagnostic line.
type Marker struct {
	Kind    MarkerKind
	Seconds int
}

var (
	durationRe = regexp.MustCompile(`Duration: (\d+):(\d+):(\d+)`)
	positionRe = regexp.MustCompile(`\btime=(\d+):(\d+):(\d+)`)
)

// ParseLine extracts a progress marker from one line of encoder output.
// ffmpeg prints the input length as "Duration: HH:MM:SS.xx" and the encode
// position as "time=HH:MM:SS.xx"; fractional seconds are dropped. Lines with
// no marker, or whose fields do not fit an int, yield MarkerNone.
func ParseLine(line string) Marker {
	if strings.Contains(line, "Duration:") {
		if secs, ok := matchClock(durationRe, line); ok {
			return Marker{Kind: MarkerDuration, Seconds: secs}
		}
	}
	if strings.Contains(line, "time=") {
		if secs, ok := matchClock(positionRe, line); ok {
			return Marker{Kind: MarkerPosition, Seconds: secs}
		}
	}
	return Marker{}
}

func matchClock(re *regexp.Regexp, line string) (int, bool) {
	m := re.FindStringSubmatch(line)
	if len(m) != 4 {
		return 0, false
	}
	return ClockSeconds(m[1], m[2], m[3])
}

// ClockSeconds converts hour, minute and second fields to H*3600 + M*60 + S.
func ClockSeconds(h, m, s string) (int, bool) {
	hh, err := strconv.ParseInt(h, 10, 32)
	if err != nil {
		return 0, false
	}
	mm, err := strconv.ParseInt(m, 10, 32)
	if err != nil {
		return 0, false
	}
	ss, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, false
	}
	total := hh*3600 + mm*60 + ss
	if total > int64(^uint32(0)>>1) {
		return 0, false
	}
	return int(total), true
}

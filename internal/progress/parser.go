// Package progress turns transfer-agent status lines into progress snapshots.
//
// The recognised status block looks like
//
//	[#40ca1b 2.4MiB/74MiB(3%) CN:2 DL:3.9MiB ETA:18s]
//
// Only the "(<percent>%)", "DL:" and "ETA:" parts are load-bearing. Speed and
// ETA stay display strings; callers must not assume a unit.
package progress

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	blockOpen  = "[#"
	blockClose = "]"
	speedTag   = "DL:"
	etaTag     = "ETA:"

	// DefaultSpeed is reported when a status block carries no DL: field
	DefaultSpeed = "0"
)

// Event is a progress snapshot; each event replaces the previous one
type Event struct {
	Percent float64 `json:"percent"`
	Speed   string  `json:"speed"`
	ETA     string  `json:"eta"`
}

// Status renders the user-facing status message for the snapshot
func (e Event) Status() string {
	return fmt.Sprintf("Speed: %s/s, ETA: %s", e.Speed, e.ETA)
}

// Clamp returns the percentage bounded to [0, 100]; NaN maps to 0
func (e Event) Clamp() float64 {
	switch {
	case math.IsNaN(e.Percent), e.Percent < 0:
		return 0
	case e.Percent > 100:
		return 100
	default:
		return e.Percent
	}
}

// Parse extracts a progress event from one status line.
// The second return value is false for any line that is not a well-formed
// status block; malformed input never produces an error.
func Parse(line string) (Event, bool) {
	open := strings.Index(line, blockOpen)
	if open < 0 {
		return Event{}, false
	}
	end := strings.Index(line[open:], blockClose)
	if end < 0 {
		return Event{}, false
	}
	block := line[open : open+end+1]

	percent, ok := parsePercent(block)
	if !ok {
		return Event{}, false
	}

	return Event{
		Percent: percent,
		Speed:   parseSpeed(block),
		ETA:     parseETA(block),
	}, true
}

// parsePercent reads the value between the first "(" and the following ")"
func parsePercent(block string) (float64, bool) {
	lp := strings.Index(block, "(")
	if lp < 0 {
		return 0, false
	}
	rp := strings.Index(block[lp+1:], ")")
	if rp < 0 {
		return 0, false
	}
	raw := strings.TrimSpace(block[lp+1 : lp+1+rp])
	raw = strings.TrimSuffix(raw, "%")

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func parseSpeed(block string) string {
	i := strings.Index(block, speedTag)
	if i < 0 {
		return DefaultSpeed
	}
	fields := strings.Fields(strings.TrimSuffix(block[i+len(speedTag):], blockClose))
	if len(fields) == 0 {
		return DefaultSpeed
	}
	return fields[0]
}

func parseETA(block string) string {
	i := strings.Index(block, etaTag)
	if i < 0 {
		return ""
	}
	rest := block[i+len(etaTag):]
	if j := strings.Index(rest, blockClose); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

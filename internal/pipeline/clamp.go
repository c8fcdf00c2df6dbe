package pipeline

import "math"

// span is a proposal's bounds after clamping to the call audio.
type span struct {
	StartMs int64
	EndMs   int64
	Clamped bool
	// Drop is set when nothing usable remains.
	Drop string
}

// clampSpan converts proposed seconds to milliseconds bounded by [0, durationMs].
// Every surviving span satisfies 0 <= StartMs < EndMs <= durationMs.
func clampSpan(startSec, endSec float64, durationMs int64) span {
	if math.IsNaN(startSec) || math.IsNaN(endSec) || math.IsInf(startSec, 0) || math.IsInf(endSec, 0) {
		return span{Drop: "non-numeric timestamps"}
	}
	if durationMs <= 0 {
		return span{Drop: "call has no audio duration"}
	}
	// Bound in float milliseconds first; huge inputs overflow int64.
	startMs, endMs := math.Round(startSec*1000), math.Round(endSec*1000)
	limit := float64(durationMs)
	if startMs >= limit {
		return span{Drop: "starts beyond call audio"}
	}
	var s span
	if startMs < 0 {
		startMs, s.Clamped = 0, true
	}
	if endMs > limit {
		endMs, s.Clamped = limit, true
	}
	if startMs >= endMs {
		return span{Drop: "empty after clamping"}
	}
	s.StartMs, s.EndMs = int64(startMs), int64(endMs)
	return s
}

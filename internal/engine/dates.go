// Package engine implements the price-watch evaluation core: expanding a
// watch's date window into candidate search dates, reducing fare search
// results to a single best offer, deciding whether that offer warrants a
// notification, and sweeping the full set of active watches.
package engine

import (
	"time"

	"farewatch/internal/types"
)

// Combination caps bound the number of downstream fare search calls per
// watch regardless of window size.
const (
	MaxCombinationsOneWay    = 15
	MaxCombinationsRoundTrip = 10

	// primaryReturnOffset is the default trip length for round-trip
	// candidates; alternateReturnOffsets are tried additionally when the
	// watch carries flex days.
	primaryReturnOffset = 7
)

var alternateReturnOffsets = [2]int{5, 9}

// GenerateCombinations expands a watch's date window and flex allowance into
// a bounded, deterministic list of candidate (depart, return?) pairs.
//
// Candidate depart dates run from start to end inclusive. When flexDays > 0,
// up to flexDays extra dates are prepended before start (dropped individually
// when they fall before today) and appended after end.
//
// One-way watches get exactly one combination per depart date and never a
// return date. Round-trip watches get a primary return of depart+7 days,
// plus depart+5 and depart+9 when flexDays > 0; every return is bounded by
// end+flexDays. Every round-trip combination carries a return date.
func GenerateCombinations(start, end time.Time, flexDays int, trip types.TripType, today time.Time) []types.DateCombination {
	start = types.DateOnly(start)
	end = types.DateOnly(end)
	today = types.DateOnly(today)

	limit := MaxCombinationsOneWay
	if trip == types.TripRoundTrip {
		limit = MaxCombinationsRoundTrip
	}

	departs := candidateDeparts(start, end, flexDays, today)

	var out []types.DateCombination

	if trip == types.TripOneWay {
		for _, d := range departs {
			out = append(out, types.DateCombination{Depart: d})
			if len(out) >= limit {
				return out
			}
		}
		return out
	}

	returnLimit := end.AddDate(0, 0, flexDays)
	offsets := []int{primaryReturnOffset}
	if flexDays > 0 {
		offsets = append(offsets, alternateReturnOffsets[0], alternateReturnOffsets[1])
	}

	for _, d := range departs {
		for _, offset := range offsets {
			ret := d.AddDate(0, 0, offset)
			if ret.After(returnLimit) {
				continue
			}
			r := ret
			out = append(out, types.DateCombination{Depart: d, Return: &r})
			if len(out) >= limit {
				return out
			}
		}
	}

	// A tight window can reject every bounded return. The watch still needs
	// at least one searchable candidate, so fall back to the default trip
	// length from the first depart date.
	if len(out) == 0 && len(departs) > 0 {
		r := departs[0].AddDate(0, 0, primaryReturnOffset)
		out = append(out, types.DateCombination{Depart: departs[0], Return: &r})
	}

	return out
}

// candidateDeparts enumerates depart dates in chronological order: the flex
// prefix (skipping dates before today), the window itself, the flex suffix.
func candidateDeparts(start, end time.Time, flexDays int, today time.Time) []time.Time {
	var out []time.Time

	for i := flexDays; i > 0; i-- {
		d := start.AddDate(0, 0, -i)
		if d.Before(today) {
			continue
		}
		out = append(out, d)
	}

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}

	for i := 1; i <= flexDays; i++ {
		out = append(out, end.AddDate(0, 0, i))
	}

	return out
}

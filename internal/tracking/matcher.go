package tracking

import (
	"sort"
	"time"

	"github.com/medtrack/adherence/pkg/types"
)

// DefaultMatchTolerance is the maximum distance between a dose event and
// an occurrence for them to be considered the same real-world dose.
const DefaultMatchTolerance = 30 * time.Minute

// MatchDoses assigns dose events to occurrences within the tolerance
// window and returns the occurrences with match status populated.
//
// Occurrences are processed in scheduled-time order. Each occurrence
// takes the unconsumed event for its medicine closest to its scheduled
// time, with ties broken by insertion order. A consumed event is
// unavailable to later occurrences, so one event never satisfies two
// occurrences. This greedy pass is deliberately not a globally optimal
// assignment; it is deterministic and cheap.
func MatchDoses(occurrences []types.Occurrence, doses []*types.DoseEvent, tolerance time.Duration) []types.Occurrence {
	if tolerance <= 0 {
		tolerance = DefaultMatchTolerance
	}

	matched := make([]types.Occurrence, len(occurrences))
	copy(matched, occurrences)
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ScheduledTime.Before(matched[j].ScheduledTime)
	})

	consumed := make(map[string]bool, len(doses))

	for i := range matched {
		occ := &matched[i]
		occ.MatchStatus = types.MatchDue
		occ.MatchedDoseID = ""

		var best *types.DoseEvent
		var bestDistance time.Duration

		for _, dose := range doses {
			if dose.MedicineID != occ.MedicineID || consumed[dose.ID] {
				continue
			}
			distance := absDuration(dose.Timestamp.Sub(occ.ScheduledTime))
			if distance > tolerance {
				continue
			}
			// Strict less-than keeps the earliest-inserted candidate on ties.
			if best == nil || distance < bestDistance {
				best = dose
				bestDistance = distance
			}
		}

		if best == nil {
			continue
		}

		consumed[best.ID] = true
		occ.MatchedDoseID = best.ID
		occ.MatchStatus = matchStatusFor(best.Status)
	}

	return matched
}

func matchStatusFor(status types.DoseStatus) types.MatchStatus {
	switch status {
	case types.DoseTaken:
		return types.MatchTaken
	case types.DoseMissed:
		return types.MatchMissed
	case types.DoseSkipped:
		return types.MatchSkipped
	default:
		return types.MatchDue
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

package summaries

import (
	"fmt"
	"sort"
	"time"
)

const opAggregateStats = "summaries.aggregate_stats"

var monthAbbreviations = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// MonthKey identifies a calendar month. Ordering uses the integers, never the label.
type MonthKey struct {
	Year  int
	Month time.Month
}

// Before reports whether k is an earlier month than other.
func (k MonthKey) Before(other MonthKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

// Label renders the month for display, e.g. "Jan 2024".
func (k MonthKey) Label() string {
	if k.Month < time.January || k.Month > time.December {
		return fmt.Sprintf("%02d %d", int(k.Month), k.Year)
	}
	return fmt.Sprintf("%s %d", monthAbbreviations[k.Month-1], k.Year)
}

// MonthlySessionCount is the number of sessions started in one month.
type MonthlySessionCount struct {
	Month    MonthKey
	Sessions int
}

// ParticipantStats captures attendance for one username.
type ParticipantStats struct {
	Name              string
	SessionsAttended  int
	ParticipationRate float64
	IsDM              bool
}

// CampaignStats aggregates a campaign's sessions.
type CampaignStats struct {
	TotalSessions        int
	TotalPlayTime        float64
	AverageSessionLength float64
	Participants         []ParticipantStats
	MonthlySessionCounts []MonthlySessionCount
}

// AggregateCampaignStats derives attendance, duration and monthly trend metrics.
// Durations are in minutes. Participants are keyed by username in first-seen order and
// keep the DM flag of their first occurrence. A username counts once per record.
func AggregateCampaignStats(records []Summary) (CampaignStats, error) {
	if len(records) == 0 {
		return CampaignStats{}, newServiceError(opAggregateStats, "no_summaries", KindNotFound, ErrNotFound)
	}

	stats := CampaignStats{TotalSessions: len(records)}

	participantIndex := make(map[string]int)
	monthIndex := make(map[MonthKey]int)

	for _, record := range records {
		stats.TotalPlayTime += record.Duration().Minutes()

		counted := make(map[string]struct{}, len(record.Participants))
		for _, participant := range record.Participants {
			if _, ok := counted[participant.Username]; ok {
				continue
			}
			counted[participant.Username] = struct{}{}
			position, seen := participantIndex[participant.Username]
			if !seen {
				position = len(stats.Participants)
				participantIndex[participant.Username] = position
				stats.Participants = append(stats.Participants, ParticipantStats{
					Name: participant.Username,
					IsDM: participant.IsDM,
				})
			}
			stats.Participants[position].SessionsAttended++
		}

		start := record.SessionStart.UTC()
		key := MonthKey{Year: start.Year(), Month: start.Month()}
		position, seen := monthIndex[key]
		if !seen {
			position = len(stats.MonthlySessionCounts)
			monthIndex[key] = position
			stats.MonthlySessionCounts = append(stats.MonthlySessionCounts, MonthlySessionCount{Month: key})
		}
		stats.MonthlySessionCounts[position].Sessions++
	}

	stats.AverageSessionLength = stats.TotalPlayTime / float64(stats.TotalSessions)
	for index := range stats.Participants {
		stats.Participants[index].ParticipationRate = float64(stats.Participants[index].SessionsAttended) / float64(stats.TotalSessions)
	}

	sort.SliceStable(stats.MonthlySessionCounts, func(left, right int) bool {
		return stats.MonthlySessionCounts[left].Month.Before(stats.MonthlySessionCounts[right].Month)
	})

	return stats, nil
}

package state

import "time"

// Analytics returns a copy of the analytics sub-state.
func (s *Store) Analytics() AnalyticsView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.analytics
	a.Stats = append([]VersionStats(nil), a.Stats...)
	a.Events = make([]EventPercents, len(s.analytics.Events))
	for i, e := range s.analytics.Events {
		a.Events[i] = EventPercents{
			Event:    e.Event,
			Percents: append([]VersionPercent(nil), e.Percents...),
		}
	}
	return a
}

// SetAnalyticsQuery sets the query window used by the analytics page.
func (s *Store) SetAnalyticsQuery(start, end time.Time) {
	s.mutate(TopicAnalytics, func() bool {
		s.analytics.DateStart = start
		s.analytics.DateEnd = end
		return true
	})
}

// SetAnalyticsResults stores the visit totals returned for the current window.
func (s *Store) SetAnalyticsResults(totalVisits int, stats []VersionStats) {
	s.mutate(TopicAnalytics, func() bool {
		s.analytics.TotalVisits = totalVisits
		s.analytics.Stats = append([]VersionStats(nil), stats...)
		return true
	})
}

// SetEventStats stores the per-event percentages for the current window.
func (s *Store) SetEventStats(events []EventPercents) {
	s.mutate(TopicAnalytics, func() bool {
		s.analytics.Events = make([]EventPercents, len(events))
		for i, e := range events {
			s.analytics.Events[i] = EventPercents{
				Event:    e.Event,
				Percents: append([]VersionPercent(nil), e.Percents...),
			}
		}
		return true
	})
}

package state

import "time"

// Topic names one independently observable sub-state.
type Topic string

const (
	TopicVersions  Topic = "versions"
	TopicAnalytics Topic = "analytics"
	TopicProxies   Topic = "proxies"
)

// AllTopics lists every sub-state in a stable order.
var AllTopics = []Topic{TopicVersions, TopicAnalytics, TopicProxies}

// Selection is the traffic split strategy of a deployed version.
type Selection string

const (
	// SelectionWeight gives the version a share of new sessions proportional
	// to its weight among all weighted versions.
	SelectionWeight Selection = "Weight"
	// SelectionURLParam routes new sessions whose query contains URLParam.
	SelectionURLParam Selection = "UrlParam"
)

// Version is one deployed site version and its selection strategy.
// Weight is meaningful only for SelectionWeight, URLParam only for
// SelectionURLParam.
type Version struct {
	Name      string
	Selection Selection
	Weight    uint16
	URLParam  string
}

// VersionsView is a read-only snapshot of the versions sub-state.
type VersionsView struct {
	List []Version
	// Changed is true while there are local edits not yet saved to the server.
	Changed bool
}

// Find returns the entry named name.
func (v VersionsView) Find(name string) (Version, bool) {
	for _, ver := range v.List {
		if ver.Name == name {
			return ver, true
		}
	}
	return Version{}, false
}

// VersionStats holds visit statistics of a single version within the
// analytics window.
type VersionStats struct {
	Name            string
	AverageRequests float64
	AverageDuration time.Duration
	BounceRate      float64
	VisitCount      int
}

// VersionPercent is the share of a version's visits that raised an event.
type VersionPercent struct {
	Version string
	Percent float64
}

// EventPercents groups per-version percentages for one event name.
type EventPercents struct {
	Event    string
	Percents []VersionPercent
}

// AnalyticsView is a read-only snapshot of the analytics sub-state.
type AnalyticsView struct {
	DateStart   time.Time
	DateEnd     time.Time
	TotalVisits int
	Stats       []VersionStats
	Events      []EventPercents
}

// ReverseProxy routes requests whose path starts with Prefix to Target.
type ReverseProxy struct {
	ID     int
	Prefix string
	Target string
}

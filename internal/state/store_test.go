package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubscribe_SeesEveryTopicMutation(t *testing.T) {
	s := New()
	sub := s.Subscribe(TopicVersions)
	defer sub.Close()

	require.NoError(t, s.AddVersion(Version{Name: "v1"}))
	s.ReplaceProxies([]ReverseProxy{{ID: 1, Prefix: "/api", Target: "http://localhost:8080"}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	changes, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, TopicVersions, changes[0].Topic)
	assert.Len(t, s.Versions().List, 1)

	assert.Nil(t, sub.Drain(), "proxy change must not reach a versions-only subscriber")
}

func TestSubscribe_CoalescesWithoutBlocking(t *testing.T) {
	s := New()
	sub := s.Subscribe()
	defer sub.Close()

	for i := 0; i < 100; i++ {
		s.SetAnalyticsQuery(time.Unix(int64(i), 0), time.Unix(int64(i+1), 0))
	}
	s.ReplaceProxies(nil)

	changes := sub.Drain()
	require.Len(t, changes, 2)
	assert.Equal(t, TopicAnalytics, changes[0].Topic)
	assert.Equal(t, TopicProxies, changes[1].Topic)
	assert.Less(t, changes[0].Seq, changes[1].Seq)
	assert.Equal(t, time.Unix(99, 0), s.Analytics().DateStart)
}

func TestSubscribe_NoOpMutationIsSilent(t *testing.T) {
	s := New()
	sub := s.Subscribe(TopicVersions)
	defer sub.Close()

	s.DeleteVersion("missing")
	s.UpdateVersion("missing", func(*Version) {})
	s.MarkVersionsSaved()
	assert.Nil(t, sub.Drain())
}

func TestSubscription_Close(t *testing.T) {
	s := New()
	sub := s.Subscribe()
	sub.Close()
	sub.Close()

	s.ReplaceProxies(nil)
	assert.Nil(t, sub.Drain())

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

func TestSubscription_NextHonoursContext(t *testing.T) {
	s := New()
	sub := s.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscription_NextWakesOnMutation(t *testing.T) {
	s := New()
	sub := s.Subscribe(TopicProxies)
	defer sub.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	var got []Change
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		got, _ = sub.Next(ctx)
	}()

	s.ReplaceProxies([]ReverseProxy{{ID: 2, Prefix: "/a"}})
	wg.Wait()
	require.Len(t, got, 1)
	assert.Equal(t, TopicProxies, got[0].Topic)
}

func TestOnChange_RunsInOrderAndUnregisters(t *testing.T) {
	s := New()
	var calls []string
	cancelA := s.OnChange(TopicVersions, func(Change) { calls = append(calls, "a") })
	s.OnChange(TopicVersions, func(c Change) {
		// the mutation is already visible to callbacks
		assert.Len(t, s.Versions().List, len(calls))
		calls = append(calls, "b")
	})

	require.NoError(t, s.AddVersion(Version{Name: "x"}))
	assert.Equal(t, []string{"a", "b"}, calls)

	cancelA()
	cancelA()
	calls = nil
	s.ClearVersions()
	assert.Equal(t, []string{"b"}, calls)
}

func TestProxies_OrderPreserved(t *testing.T) {
	s := New()
	list := []ReverseProxy{
		{ID: 3, Prefix: "/api/v2", Target: "http://b"},
		{ID: 1, Prefix: "/api", Target: "http://a"},
		{ID: 2, Prefix: "/", Target: "http://c"},
	}
	s.ReplaceProxies(list)
	assert.Equal(t, list, s.Proxies())

	got := s.Proxies()
	got[0].Prefix = "/mutated"
	assert.Equal(t, "/api/v2", s.Proxies()[0].Prefix)
}

func TestAnalytics_SettersAndCopies(t *testing.T) {
	s := New()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	s.SetAnalyticsQuery(start, end)
	s.SetAnalyticsResults(12, []VersionStats{{Name: "v1", VisitCount: 12, BounceRate: 25}})
	s.SetEventStats([]EventPercents{{Event: "TIME_ON_PAGE_7", Percents: []VersionPercent{{Version: "v1", Percent: 50}}}})

	a := s.Analytics()
	assert.Equal(t, start, a.DateStart)
	assert.Equal(t, end, a.DateEnd)
	assert.Equal(t, 12, a.TotalVisits)
	require.Len(t, a.Events, 1)

	a.Events[0].Percents[0].Percent = 1
	a.Stats[0].VisitCount = 0
	b := s.Analytics()
	assert.Equal(t, 50.0, b.Events[0].Percents[0].Percent)
	assert.Equal(t, 12, b.Stats[0].VisitCount)
}

package aggregate

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/scriptflow/internal/runtime/classify"
	"github.com/drblury/scriptflow/internal/runtime/errors"
)

func frag(id string, seq, total int, content, source string) classify.Event {
	return classify.Event{
		Kind:          classify.KindFragment,
		CorrelationID: id,
		Sequence:      seq,
		Total:         total,
		Content:       content,
		SourceName:    source,
	}
}

func ctx(id, info string) classify.Event {
	return classify.Event{Kind: classify.KindContext, CorrelationID: id, ContextInfo: info}
}

func start(id string, at time.Time) classify.Event {
	return classify.Event{Kind: classify.KindStart, CorrelationID: id, StartTime: at}
}

func TestAggregateGroupsByCorrelationID(t *testing.T) {
	set := Aggregate([]classify.Event{
		frag("b", 1, 2, "b1", ""),
		frag("a", 1, 1, "a1", "a.ps1"),
		frag("b", 2, 2, "b2", ""),
	})

	require.Equal(t, 2, set.Len())
	assert.Equal(t, []string{"b", "a"}, set.IDs(), "first-sighting order")

	b, ok := set.Get("b")
	require.True(t, ok)
	assert.Equal(t, map[int]string{1: "b1", 2: "b2"}, b.Fragments)
	assert.Equal(t, 2, b.TotalFragments)
	assert.Equal(t, "Fragment_b", b.DisplayName)

	a, _ := set.Get("a")
	assert.Equal(t, "a.ps1", a.DisplayName)
	assert.Nil(t, a.ContextInfo)
	assert.Nil(t, a.StartTime)

	all := set.All()
	require.Len(t, all, 2)
	assert.Same(t, b, all[0])
	assert.Same(t, a, all[1])
}

func TestLastWriteWins(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	set := Aggregate([]classify.Event{
		frag("x", 1, 3, "old", "first.ps1"),
		ctx("x", "ctx-1"),
		start("x", t1),
		frag("x", 1, 2, "new", ""),
		frag("x", 2, 2, "two", "second.ps1"),
		ctx("x", "ctx-2"),
		start("x", t2),
	})

	acc, ok := set.Get("x")
	require.True(t, ok)
	assert.Equal(t, "new", acc.Fragments[1])
	assert.Equal(t, 2, acc.TotalFragments)
	assert.Equal(t, "second.ps1", acc.DisplayName)
	require.NotNil(t, acc.ContextInfo)
	assert.Equal(t, "ctx-2", *acc.ContextInfo)
	require.NotNil(t, acc.StartTime)
	assert.True(t, acc.StartTime.Equal(t2))
}

func TestEmptySourceNameKeepsPriorDisplayName(t *testing.T) {
	set := Aggregate([]classify.Event{
		frag("x", 1, 2, "a", "run.ps1"),
		frag("x", 2, 2, "b", ""),
	})
	acc, _ := set.Get("x")
	assert.Equal(t, "run.ps1", acc.DisplayName)
}

func TestMalformedValuesDoNotOverwrite(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	set := Aggregate([]classify.Event{
		frag("x", 1, 2, "a", ""),
		ctx("x", "kept"),
		start("x", at),
		frag("x", 0, 0, "unkeyed", ""),
		ctx("x", ""),
		start("x", time.Time{}),
	})
	acc, _ := set.Get("x")
	assert.Equal(t, map[int]string{1: "a"}, acc.Fragments)
	assert.Equal(t, 2, acc.TotalFragments)
	assert.Equal(t, "kept", *acc.ContextInfo)
	assert.True(t, acc.StartTime.Equal(at))
}

func TestAccumulatorExistsForAnyKind(t *testing.T) {
	set := Aggregate([]classify.Event{ctx("c", "info"), start("s", time.Now())})
	assert.Equal(t, []string{"c", "s"}, set.IDs())

	c, _ := set.Get("c")
	assert.Empty(t, c.Fragments)
	assert.Equal(t, 0, c.TotalFragments)
	assert.Equal(t, "Fragment_c", c.DisplayName)
}

func TestIgnoredEventsAreCounted(t *testing.T) {
	issue := &errors.MalformedFieldError{EventID: 4104, Field: "ScriptBlockId", Index: 3, Reason: "missing"}
	set := Aggregate([]classify.Event{
		{Kind: classify.KindUnrecognized, EventID: 4688},
		{Kind: classify.KindFragment, Sequence: 1, Total: 1, Content: "x", Issues: []*errors.MalformedFieldError{issue}},
		frag("a", 1, 1, "a", ""),
		ctx("a", "c"),
		start("a", time.Now()),
	})

	assert.Equal(t, 1, set.Len())
	stats := set.Stats()
	assert.Equal(t, Stats{Events: 5, Fragments: 1, Contexts: 1, Starts: 1, Unrecognized: 1, Discarded: 1}, stats)

	issues := set.Issues()
	require.Len(t, issues, 1)
	assert.Equal(t, "", issues[0].CorrelationID)
	assert.Same(t, issue, issues[0].Err)
}

func TestFragmentsOrderIndependent(t *testing.T) {
	events := []classify.Event{
		frag("x", 1, 10, "1", ""),
		frag("x", 2, 10, "2", ""),
		frag("x", 3, 10, "3", ""),
		frag("x", 10, 10, "10", ""),
		frag("x", 5, 10, "5", ""),
	}
	want := Aggregate(events)
	wantAcc, _ := want.Get("x")

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]classify.Event(nil), events...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, _ := Aggregate(shuffled).Get("x")
		assert.Equal(t, wantAcc.Fragments, got.Fragments)
		assert.Equal(t, []int{1, 2, 3, 5, 10}, got.Keys())
	}
}

func TestFinishHandsOff(t *testing.T) {
	agg := New()
	require.NoError(t, agg.Add(frag("a", 1, 1, "x", "")))

	set, err := agg.Finish()
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())

	assert.ErrorIs(t, agg.Add(frag("a", 2, 2, "y", "")), errors.ErrAggregatorClosed)
	_, err = agg.Finish()
	assert.ErrorIs(t, err, errors.ErrAggregatorClosed)

	acc, _ := set.Get("a")
	assert.Len(t, acc.Fragments, 1, "handed-off set is not mutated by later Add calls")
}

func TestIDsReturnsCopy(t *testing.T) {
	set := Aggregate([]classify.Event{frag("a", 1, 1, "x", "")})
	ids := set.IDs()
	ids[0] = "mutated"
	assert.Equal(t, []string{"a"}, set.IDs())
}

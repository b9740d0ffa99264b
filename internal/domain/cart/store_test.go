package cart

import (
	"math"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func tee(qty int) Line {
	return Line{ProductID: 5, Name: "Tee", UnitPrice: d("20"), Image: "tee.jpg", Quantity: qty}
}

func keys(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Key
	}
	return out
}

func TestAdd_MergesSameProduct(t *testing.T) {
	s := New()
	s.Add(Line{ProductID: 1, Name: "Cap", UnitPrice: d("5"), Quantity: 2})
	s.Add(Line{ProductID: 1, Name: "Cap", UnitPrice: d("5"), Quantity: 3})

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, "1", lines[0].Key)
}

func TestAdd_QuantityIsSumOfCandidates(t *testing.T) {
	quantities := []int{1, 4, 2, 7, 1}

	s := New()
	want := 0
	for _, q := range quantities {
		s.Add(Line{ProductID: 9, UnitPrice: d("1.5"), Quantity: q})
		want += q
	}

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, want, lines[0].Quantity)
}

func TestAdd_ExistingDisplayFieldsWin(t *testing.T) {
	s := New()
	s.Add(Line{ProductID: 1, Name: "Old", UnitPrice: d("5"), Image: "old.jpg", Quantity: 1, Sizes: []string{"M"}})
	s.Add(Line{ProductID: 1, Name: "New", UnitPrice: d("7"), Image: "new.jpg", Quantity: 1, Sizes: []string{"L"}})

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "Old", lines[0].Name)
	assert.True(t, d("5").Equal(lines[0].UnitPrice))
	assert.Equal(t, "old.jpg", lines[0].Image)
	assert.Equal(t, []string{"M"}, lines[0].Sizes)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestAdd_KeepsCandidateQuantity(t *testing.T) {
	s := New()
	s.Add(tee(4))

	assert.Equal(t, 4, s.Lines()[0].Quantity)
}

func TestAdd_ClampsQuantity(t *testing.T) {
	for _, q := range []int{0, -3} {
		s := New()
		s.Add(tee(q))

		lines := s.Lines()
		require.Len(t, lines, 1)
		assert.Equal(t, 1, lines[0].Quantity)
	}
}

func TestAdd_InsertionOrderStable(t *testing.T) {
	s := New()
	s.Add(Line{ProductID: 2, UnitPrice: d("1"), Quantity: 1})
	s.Add(Line{ProductID: 1, UnitPrice: d("1"), Quantity: 1})
	s.Add(Line{ProductID: 2, UnitPrice: d("1"), Quantity: 1})

	assert.Equal(t, []string{"2", "1"}, keys(s.Lines()))
}

func TestUpdateQuantity(t *testing.T) {
	s := New()
	s.Add(Line{ProductID: 1, UnitPrice: d("2"), Quantity: 1})
	s.Add(Line{ProductID: 2, UnitPrice: d("3"), Quantity: 1})

	s.UpdateQuantity("1", 4)

	lines := s.Lines()
	assert.Equal(t, []string{"1", "2"}, keys(lines))
	assert.Equal(t, 4, lines[0].Quantity)
	assert.True(t, d("11").Equal(s.Total()))
}

func TestUpdateQuantity_ZeroRemoves(t *testing.T) {
	s := New()
	s.Add(Line{ProductID: 1, UnitPrice: d("2"), Quantity: 3})
	s.Add(Line{ProductID: 2, UnitPrice: d("3"), Quantity: 1})

	s.UpdateQuantity("1", 0)

	assert.Equal(t, []string{"2"}, keys(s.Lines()))

	s.UpdateQuantity("2", -1)
	assert.Empty(t, s.Lines())
}

func TestUpdateQuantity_MissingIsNoop(t *testing.T) {
	s := New()
	s.Add(tee(1))

	calls := 0
	s.Subscribe(func(Snapshot) { calls++ })

	s.UpdateQuantity("99", 5)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "5", lines[0].Key)
	assert.Zero(t, calls)
}

func TestRemove_Idempotent(t *testing.T) {
	s := New()
	s.Add(Line{ProductID: 1, UnitPrice: d("2"), Quantity: 1})
	s.Add(Line{ProductID: 2, UnitPrice: d("3"), Quantity: 1})
	s.Add(Line{ProductID: 3, UnitPrice: d("4"), Quantity: 1})

	s.Remove("2")
	once := s.Lines()
	s.Remove("2")

	assert.Equal(t, once, s.Lines())
	assert.Equal(t, []string{"1", "3"}, keys(once))

	// Index must follow the shifted positions.
	s.UpdateQuantity("3", 2)
	assert.Equal(t, 2, s.Lines()[1].Quantity)
}

func TestTotal_RecomputedAfterMutations(t *testing.T) {
	s := New()
	assert.True(t, decimal.Zero.Equal(s.Total()))

	s.Add(Line{ProductID: 1, UnitPrice: d("0.10"), Quantity: 3})
	s.Add(Line{ProductID: 2, UnitPrice: d("19.99"), Quantity: 2})
	assert.True(t, d("40.28").Equal(s.Total()), s.Total().String())

	s.Remove("2")
	assert.True(t, d("0.30").Equal(s.Total()), s.Total().String())

	s.UpdateQuantity("1", 10)
	assert.True(t, d("1").Equal(s.Total()), s.Total().String())
}

func TestScenario_TeeCounts(t *testing.T) {
	s := New()

	s.Add(tee(1))
	assert.Equal(t, 1, s.LineCount())
	assert.True(t, d("20").Equal(s.Total()))

	s.Add(tee(2))
	assert.Equal(t, 3, s.LineCount())
	assert.True(t, d("60").Equal(s.Total()))
	assert.Equal(t, 1, s.DistinctLines())
}

func TestClear(t *testing.T) {
	s := New()
	calls := 0
	s.Subscribe(func(Snapshot) { calls++ })

	s.Clear()
	assert.Zero(t, calls, "clearing an empty cart does not notify")

	s.Add(tee(1))
	s.Clear()
	assert.Equal(t, 2, calls)
	assert.Empty(t, s.Lines())

	s.Add(tee(1))
	assert.Equal(t, []string{"5"}, keys(s.Lines()))
}

func TestAdd_SaturatesAtMaxQuantity(t *testing.T) {
	s := New()
	s.Add(tee(math.MaxInt))
	s.Add(tee(1))
	s.Add(tee(MaxQuantity))

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, MaxQuantity, lines[0].Quantity)
	assert.Equal(t, MaxQuantity, s.LineCount())
	assert.True(t, s.Total().IsPositive())
	assert.True(t, d("20").Mul(decimal.NewFromInt(MaxQuantity)).Equal(s.Total()))
}

func TestUpdateQuantity_ClampsToMaxQuantity(t *testing.T) {
	s := New()
	s.Add(tee(1))
	s.UpdateQuantity("5", math.MaxInt)

	assert.Equal(t, MaxQuantity, s.LineCount())

	s.Add(tee(5))
	assert.Equal(t, MaxQuantity, s.LineCount())
}

func TestDrain(t *testing.T) {
	s := New()
	var got []Snapshot
	s.Subscribe(func(snap Snapshot) { got = append(got, snap) })

	assert.True(t, s.Drain().IsEmpty())
	assert.Empty(t, got, "draining an empty cart does not notify")

	s.Add(tee(2))
	s.Add(Line{ProductID: 7, UnitPrice: d("1.5"), Quantity: 1})

	drained := s.Drain()
	assert.Equal(t, []string{"5", "7"}, keys(drained.Lines()))
	assert.True(t, d("41.5").Equal(drained.Total()))
	assert.Empty(t, s.Lines())
	require.Len(t, got, 3)
	assert.True(t, got[2].IsEmpty())

	s.Add(tee(1))
	assert.Equal(t, 3, drained.LineCount())
	assert.Equal(t, 1, s.LineCount())
}

func TestDrain_ConcurrentAddsAreNeverLost(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add(tee(1))
		}()
	}

	drained := 0
	for range 20 {
		drained += s.Drain().LineCount()
	}
	wg.Wait()
	drained += s.Drain().LineCount()

	assert.Equal(t, 100, drained)
	assert.Zero(t, s.LineCount())
}

func TestSubscribe_ReceivesSnapshotAfterCommit(t *testing.T) {
	s := New()

	var got []Snapshot
	unsubscribe := s.Subscribe(func(snap Snapshot) { got = append(got, snap) })

	s.Add(tee(1))
	s.Add(tee(2))
	s.UpdateQuantity("5", 7)
	s.Remove("5")

	require.Len(t, got, 4)
	assert.Equal(t, 1, got[0].LineCount())
	assert.Equal(t, 3, got[1].LineCount())
	assert.True(t, d("140").Equal(got[2].Total()))
	assert.True(t, got[3].IsEmpty())

	unsubscribe()
	unsubscribe()
	s.Add(tee(1))
	assert.Len(t, got, 4)
}

func TestSubscribe_OrderAndIndependentUnsubscribe(t *testing.T) {
	s := New()

	var order []string
	unA := s.Subscribe(func(Snapshot) { order = append(order, "a") })
	s.Subscribe(func(Snapshot) { order = append(order, "b") })

	s.Add(tee(1))
	unA()
	s.Add(tee(1))

	assert.Equal(t, []string{"a", "b", "b"}, order)
}

func TestSnapshot_Immutable(t *testing.T) {
	s := New()
	s.Add(Line{ProductID: 1, UnitPrice: d("1"), Quantity: 1, Sizes: []string{"S"}})

	snap := s.Snapshot()
	lines := snap.Lines()
	lines[0].Quantity = 100
	lines[0].Sizes[0] = "XL"

	s.Add(Line{ProductID: 1, UnitPrice: d("1"), Quantity: 1})

	assert.Equal(t, 1, snap.LineCount())
	assert.Equal(t, []string{"S"}, snap.Lines()[0].Sizes)
	assert.Equal(t, 2, s.LineCount())
}

func TestKeyFunc_ProductAndSizes(t *testing.T) {
	s := New(WithKeyFunc(ByProductAndSizes))
	s.Add(Line{ProductID: 1, UnitPrice: d("10"), Quantity: 1, Sizes: []string{"M"}})
	s.Add(Line{ProductID: 1, UnitPrice: d("10"), Quantity: 1, Sizes: []string{"L"}})
	s.Add(Line{ProductID: 1, UnitPrice: d("10"), Quantity: 2, Sizes: []string{"M"}})

	lines := s.Lines()
	assert.Equal(t, []string{"1:M", "1:L"}, keys(lines))
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, 2, s.DistinctLines())
	assert.Equal(t, 4, s.LineCount())
}

func TestKeyFunc_ProductAndSizesIgnoresOrder(t *testing.T) {
	s := New(WithKeyFunc(ByProductAndSizes))
	s.Add(Line{ProductID: 1, UnitPrice: d("10"), Quantity: 1, Sizes: []string{"M", "L"}})
	s.Add(Line{ProductID: 1, UnitPrice: d("10"), Quantity: 1, Sizes: []string{"L", "M"}})

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "1:L,M", lines[0].Key)
	assert.Equal(t, []string{"M", "L"}, lines[0].Sizes)
	assert.Equal(t, 2, lines[0].Quantity)
}

func TestKeyFuncFor(t *testing.T) {
	tests := []struct {
		name   Identity
		line   Line
		want   string
		wantOK bool
	}{
		{name: "", line: Line{ProductID: 3, Sizes: []string{"S"}}, want: "3", wantOK: true},
		{name: IdentityProduct, line: Line{ProductID: 3, Sizes: []string{"S"}}, want: "3", wantOK: true},
		{name: IdentityProductSize, line: Line{ProductID: 3, Sizes: []string{"S", "M"}}, want: "3:M,S", wantOK: true},
		{name: IdentityProductSize, line: Line{ProductID: 3, Sizes: []string{"M", "S"}}, want: "3:M,S", wantOK: true},
		{name: IdentityProductSize, line: Line{ProductID: 3}, want: "3", wantOK: true},
		{name: "variant", line: Line{ProductID: 3, Sizes: []string{"S"}}, want: "3", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.name), func(t *testing.T) {
			fn, ok := KeyFuncFor(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, fn(tt.line))
		})
	}
}

func TestWithLines_RestoresWithoutNotify(t *testing.T) {
	s := New(WithLines([]Line{
		{ProductID: 2, UnitPrice: d("1"), Quantity: 2},
		{ProductID: 1, UnitPrice: d("3"), Quantity: 0},
		{ProductID: 2, UnitPrice: d("1"), Quantity: 1},
	}))

	lines := s.Lines()
	assert.Equal(t, []string{"2", "1"}, keys(lines))
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, 1, lines[1].Quantity)
}

func TestConcurrentAddsMerge(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add(tee(1))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, s.DistinctLines())
	assert.Equal(t, 50, s.LineCount())
	assert.True(t, d("1000").Equal(s.Total()))
}

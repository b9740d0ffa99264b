package cart

import (
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Line is a single purchasable entry in the cart.
type Line struct {
	// Key is the identity key assigned by the store. It is ignored on input.
	Key       string
	ProductID int64
	Name      string
	UnitPrice decimal.Decimal
	Image     string
	Quantity  int
	// Sizes is the ordered set of sizes selected for this line.
	Sizes []string
}

// Subtotal returns UnitPrice * Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (l Line) clone() Line {
	l.Sizes = slices.Clone(l.Sizes)
	return l
}

// KeyFunc derives the merge identity of a line.
type KeyFunc func(l Line) string

// ByProduct keys lines by product id only, so different sizes of the same
// product merge into one line. This is the default policy.
func ByProduct(l Line) string {
	return strconv.FormatInt(l.ProductID, 10)
}

// ByProductAndSizes keys lines by product id and the set of selected sizes.
// The order in which sizes were picked does not matter.
func ByProductAndSizes(l Line) string {
	if len(l.Sizes) == 0 {
		return ByProduct(l)
	}
	sizes := slices.Clone(l.Sizes)
	slices.Sort(sizes)
	return ByProduct(l) + ":" + strings.Join(slices.Compact(sizes), ",")
}

// Identity names a key policy in configuration.
type Identity string

const (
	IdentityProduct     Identity = "product"
	IdentityProductSize Identity = "product_size"
)

// KeyFuncFor returns the KeyFunc for the named policy. Unknown names fall
// back to ByProduct and report false.
func KeyFuncFor(id Identity) (KeyFunc, bool) {
	switch id {
	case IdentityProduct, "":
		return ByProduct, true
	case IdentityProductSize:
		return ByProductAndSizes, true
	default:
		return ByProduct, false
	}
}

// Snapshot is an immutable view of the cart at one point in time.
type Snapshot struct {
	lines []Line
}

// Lines returns a copy of the lines in insertion order.
func (s Snapshot) Lines() []Line {
	out := make([]Line, len(s.lines))
	for i, l := range s.lines {
		out[i] = l.clone()
	}
	return out
}

// Total returns the sum of unit price times quantity over all lines.
func (s Snapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// LineCount returns the total number of units across all lines.
func (s Snapshot) LineCount() int {
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// DistinctLines returns the number of lines.
func (s Snapshot) DistinctLines() int {
	return len(s.lines)
}

// IsEmpty reports whether the snapshot has no lines.
func (s Snapshot) IsEmpty() bool {
	return len(s.lines) == 0
}

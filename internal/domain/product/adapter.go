package product

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DefaultPlaceholderImage is used when a product has no images.
const DefaultPlaceholderImage = "/images/placeholder.png"

var fifty = decimal.NewFromInt(50)

// Adapter converts backend records into views.
type Adapter struct {
	placeholder string
}

// NewAdapter returns an Adapter using placeholder for products without
// images. An empty placeholder selects DefaultPlaceholderImage.
func NewAdapter(placeholder string) *Adapter {
	if placeholder == "" {
		placeholder = DefaultPlaceholderImage
	}
	return &Adapter{placeholder: placeholder}
}

// Adapt converts r into a View. now decides whether an offer is still running.
func (a *Adapter) Adapt(r Record, now time.Time) (View, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.ID), 10, 64)
	if err != nil {
		return View{}, &MalformedProductError{ProductID: r.ID, Field: "id", Err: err}
	}

	price, err := parseDecimal(r.Price)
	if err != nil {
		return View{}, &MalformedProductError{ProductID: r.ID, Field: "price", Err: err}
	}

	discount := decimal.Zero
	if strings.TrimSpace(r.Discount) != "" {
		discount, err = parseDecimal(r.Discount)
		if err != nil {
			return View{}, &MalformedProductError{ProductID: r.ID, Field: "discount", Err: err}
		}
	}

	v := View{
		ID:          id,
		Name:        r.Name,
		Price:       price,
		Image:       a.placeholder,
		Description: r.ShortDescription,
		Tags:        r.Tag,
		Variants:    make([]Variant, 0, len(r.Variation)),
		Sizes:       []string{},
	}
	if len(r.Images) > 0 && r.Images[0] != "" {
		v.Image = r.Images[0]
	}
	if len(r.Category) > 0 {
		v.Category = r.Category[0]
	}

	seen := make(map[string]struct{})
	for _, variation := range r.Variation {
		names := make([]string, len(variation.Size))
		for i, s := range variation.Size {
			names[i] = s.Name
			if _, ok := seen[s.Name]; !ok {
				seen[s.Name] = struct{}{}
				v.Sizes = append(v.Sizes, s.Name)
			}
		}
		v.Variants = append(v.Variants, Variant{Color: variation.Color, Sizes: names})
	}

	switch {
	case r.New || (r.OfferEnd != nil && r.OfferEnd.After(now)):
		v.Status = StatusNew
	case discount.GreaterThanOrEqual(fifty):
		v.Status = StatusDiscount
	}

	return v, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.New("empty value")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %q", s)
	}
	return v, nil
}

package product

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Multipart field names of a product submission.
const (
	FieldProduct        = "product"
	FieldProductImages  = "productImages"
	FieldVariationImage = "variationImage"
)

var maxDiscount = decimal.NewFromInt(100)

// Draft is a product submitted from the catalog management form.
type Draft struct {
	SKU              string
	Name             string
	Price            decimal.Decimal
	Discount         decimal.Decimal
	OfferEnd         *time.Time
	New              bool
	Rating           decimal.Decimal
	SaleCount        int
	Category         []string
	Tag              []string
	Variation        []Variation
	ShortDescription string
	FullDescription  string
}

// Image is an uploaded file that accompanies a Draft.
type Image struct {
	// Field is FieldProductImages or FieldVariationImage.
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// InvalidDraftError reports a draft the backend must not receive.
type InvalidDraftError struct {
	Field  string
	Reason string
}

func (e *InvalidDraftError) Error() string {
	return fmt.Sprintf("invalid product: %s: %s", e.Field, e.Reason)
}

// Validate checks the fields the storefront relies on when it later adapts
// the created record.
func (d Draft) Validate() error {
	switch {
	case strings.TrimSpace(d.Name) == "":
		return &InvalidDraftError{Field: "name", Reason: "required"}
	case d.Price.IsNegative():
		return &InvalidDraftError{Field: "price", Reason: "must not be negative"}
	case d.Discount.IsNegative() || d.Discount.GreaterThan(maxDiscount):
		return &InvalidDraftError{Field: "discount", Reason: "must be between 0 and 100"}
	case d.Rating.IsNegative():
		return &InvalidDraftError{Field: "rating", Reason: "must not be negative"}
	case d.SaleCount < 0:
		return &InvalidDraftError{Field: "saleCount", Reason: "must not be negative"}
	}
	for _, v := range d.Variation {
		for _, s := range v.Size {
			if s.Stock == "" {
				continue
			}
			if n, err := strconv.Atoi(s.Stock); err != nil || n < 0 {
				return &InvalidDraftError{
					Field:  "variation",
					Reason: fmt.Sprintf("stock %q of %s/%s is not a count", s.Stock, v.Color, s.Name),
				}
			}
		}
	}
	return nil
}

// DecodeDraft decodes the JSON "product" field of a submission. Numeric
// fields are accepted as JSON numbers or strings, as HTML inputs send them.
func DecodeDraft(data []byte) (Draft, error) {
	var dr Draft
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		field := string(key)
		switch field {
		case "sku":
			dr.SKU, err = scalarText(d)
		case "name":
			dr.Name, err = scalarText(d)
		case "price":
			dr.Price, err = number(d)
		case "discount":
			dr.Discount, err = number(d)
		case "rating":
			dr.Rating, err = number(d)
		case "saleCount":
			var n decimal.Decimal
			if n, err = number(d); err == nil {
				if !n.IsInteger() {
					err = errors.Errorf("%s is not a whole number", n)
				}
				dr.SaleCount = int(n.IntPart())
			}
		case "offerEnd":
			dr.OfferEnd, err = timestamp(d)
		case "new":
			dr.New, err = flag(d)
		case "category":
			dr.Category, err = stringList(d)
		case "tag":
			dr.Tag, err = stringList(d)
		case "variation":
			dr.Variation, err = variations(d)
		case "shortDescription":
			dr.ShortDescription, err = scalarText(d)
		case "fullDescription":
			dr.FullDescription, err = scalarText(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return &InvalidDraftError{Field: field, Reason: err.Error()}
		}
		return nil
	})
	if err != nil {
		var ide *InvalidDraftError
		if errors.As(err, &ide) {
			return Draft{}, ide
		}
		return Draft{}, &InvalidDraftError{Field: FieldProduct, Reason: err.Error()}
	}
	return dr, nil
}

func number(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := scalarText(d)
	if err != nil {
		return decimal.Zero, err
	}
	if s = strings.TrimSpace(s); s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// EncodeDraft writes d in the backend record shape.
func EncodeDraft(e *jx.Encoder, d Draft) {
	e.ObjStart()
	e.FieldStart("sku")
	e.Str(d.SKU)
	e.FieldStart("name")
	e.Str(d.Name)
	e.FieldStart("price")
	e.Num(jx.Num(d.Price.String()))
	e.FieldStart("discount")
	e.Num(jx.Num(d.Discount.String()))
	e.FieldStart("offerEnd")
	if d.OfferEnd != nil {
		e.Str(d.OfferEnd.UTC().Format(time.RFC3339))
	} else {
		e.Null()
	}
	e.FieldStart("new")
	e.Bool(d.New)
	e.FieldStart("rating")
	e.Num(jx.Num(d.Rating.String()))
	e.FieldStart("saleCount")
	e.Int(d.SaleCount)
	e.FieldStart("category")
	encodeStrings(e, d.Category)
	e.FieldStart("tag")
	encodeStrings(e, d.Tag)
	e.FieldStart("variation")
	e.ArrStart()
	for _, v := range d.Variation {
		e.ObjStart()
		e.FieldStart("color")
		e.Str(v.Color)
		e.FieldStart("size")
		e.ArrStart()
		for _, s := range v.Size {
			e.ObjStart()
			e.FieldStart("name")
			e.Str(s.Name)
			e.FieldStart("stock")
			e.Str(s.Stock)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("shortDescription")
	e.Str(d.ShortDescription)
	e.FieldStart("fullDescription")
	e.Str(d.FullDescription)
	e.ObjEnd()
}

func encodeStrings(e *jx.Encoder, ss []string) {
	e.ArrStart()
	for _, s := range ss {
		e.Str(s)
	}
	e.ArrEnd()
}

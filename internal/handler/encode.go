package handler

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

const maxRequestBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Bytes())))
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string) {
	httpmiddleware.WriteError(w, status, message)
}

// readObject decodes a JSON object request body field by field.
func readObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if err := jx.DecodeBytes(data).Obj(fn); err != nil {
		return errors.Wrap(err, "decode body")
	}
	return nil
}

// scalar reads a string or number as text.
func scalar(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		return n.String(), err
	default:
		return "", errors.Errorf("unexpected %s", d.Next())
	}
}

func money(v decimal.Decimal) string {
	return v.StringFixed(2)
}

func encodeStrings(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

func encodeProduct(e *jx.Encoder, v product.View) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(v.ID)
	e.FieldStart("name")
	e.Str(v.Name)
	e.FieldStart("price")
	e.Str(money(v.Price))
	e.FieldStart("image")
	e.Str(v.Image)
	e.FieldStart("description")
	e.Str(v.Description)
	e.FieldStart("category")
	e.Str(v.Category)
	e.FieldStart("tags")
	encodeStrings(e, v.Tags)
	e.FieldStart("variants")
	e.ArrStart()
	for _, vr := range v.Variants {
		e.ObjStart()
		e.FieldStart("color")
		e.Str(vr.Color)
		e.FieldStart("sizes")
		encodeStrings(e, vr.Sizes)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("sizes")
	encodeStrings(e, v.Sizes)
	if v.Status != "" {
		e.FieldStart("status")
		e.Str(v.Status)
	}
	e.ObjEnd()
}

func encodeLine(e *jx.Encoder, l cart.Line) {
	e.ObjStart()
	e.FieldStart("key")
	e.Str(l.Key)
	e.FieldStart("productId")
	e.Int64(l.ProductID)
	e.FieldStart("name")
	e.Str(l.Name)
	e.FieldStart("unitPrice")
	e.Str(money(l.UnitPrice))
	e.FieldStart("image")
	e.Str(l.Image)
	e.FieldStart("quantity")
	e.Int(l.Quantity)
	e.FieldStart("sizes")
	encodeStrings(e, l.Sizes)
	e.FieldStart("subtotal")
	e.Str(money(l.Subtotal()))
	e.ObjEnd()
}

func encodeSnapshot(e *jx.Encoder, s cart.Snapshot) {
	e.ObjStart()
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range s.Lines() {
		encodeLine(e, l)
	}
	e.ArrEnd()
	e.FieldStart("total")
	e.Str(money(s.Total()))
	e.FieldStart("lineCount")
	e.Int(s.LineCount())
	e.FieldStart("distinctLines")
	e.Int(s.DistinctLines())
	e.ObjEnd()
}

func encodeProfile(e *jx.Encoder, p *account.Profile) {
	e.ObjStart()
	e.FieldStart("username")
	e.Str(p.Username)
	e.FieldStart("avatarUrl")
	e.Str(p.AvatarURL)
	e.FieldStart("location")
	e.Str(p.Location)
	e.ObjEnd()
}

func writeSnapshot(w http.ResponseWriter, s cart.Snapshot) {
	var e jx.Encoder
	encodeSnapshot(&e, s)
	writeJSON(w, http.StatusOK, &e)
}

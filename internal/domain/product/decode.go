package product

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// DecodeRecords decodes a JSON array of backend product records.
func DecodeRecords(data []byte) ([]Record, error) {
	d := jx.DecodeBytes(data)
	if d.Next() == jx.Null {
		return []Record{}, nil
	}

	records := []Record{}
	if err := d.Arr(func(d *jx.Decoder) error {
		var r Record
		if err := decodeRecord(d, &r); err != nil {
			return err
		}
		records = append(records, r)
		return nil
	}); err != nil {
		return nil, wrapDecode(err)
	}
	return records, nil
}

// DecodeRecord decodes a single backend product record.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := decodeRecord(jx.DecodeBytes(data), &r); err != nil {
		return Record{}, wrapDecode(err)
	}
	return r, nil
}

func wrapDecode(err error) error {
	var mpe *MalformedProductError
	if errors.As(err, &mpe) {
		return mpe
	}
	return &MalformedProductError{Field: "record", Err: err}
}

func decodeRecord(d *jx.Decoder, r *Record) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		field := string(key)
		switch field {
		case "id":
			r.ID, err = scalarText(d)
		case "name":
			r.Name, err = scalarText(d)
		case "price":
			r.Price, err = scalarText(d)
		case "discount":
			r.Discount, err = scalarText(d)
		case "shortDescription":
			r.ShortDescription, err = scalarText(d)
		case "images":
			r.Images, err = stringList(d)
		case "category":
			r.Category, err = stringList(d)
		case "tag":
			r.Tag, err = stringList(d)
		case "new":
			r.New, err = flag(d)
		case "offerEnd":
			r.OfferEnd, err = timestamp(d)
		case "variation":
			r.Variation, err = variations(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return &MalformedProductError{ProductID: r.ID, Field: field, Err: err}
		}
		return nil
	})
}

// scalarText returns strings verbatim and numbers as their JSON text.
func scalarText(d *jx.Decoder) (string, error) {
	switch t := d.Next(); t {
	case jx.String:
		return d.Str()
	case jx.Number:
		raw, err := d.Raw()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.Errorf("unexpected %s", t)
	}
}

func stringList(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := scalarText(d)
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func flag(d *jx.Decoder) (bool, error) {
	switch t := d.Next(); t {
	case jx.Bool:
		return d.Bool()
	case jx.Null:
		return false, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return false, err
		}
		return strconv.ParseBool(s)
	default:
		return false, errors.Errorf("unexpected %s", t)
	}
}

func timestamp(d *jx.Decoder) (*time.Time, error) {
	s, err := scalarText(d)
	if err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", s)
	}
	return &ts, nil
}

func variations(d *jx.Decoder) ([]Variation, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	out := []Variation{}
	err := d.Arr(func(d *jx.Decoder) error {
		var v Variation
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "color":
				v.Color, err = scalarText(d)
			case "size":
				v.Size, err = sizes(d)
			default:
				return d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

func sizes(d *jx.Decoder) ([]Size, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	out := []Size{}
	err := d.Arr(func(d *jx.Decoder) error {
		var s Size
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "name":
				s.Name, err = scalarText(d)
			case "stock":
				s.Stock, err = scalarText(d)
			default:
				return d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

package backend

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/product"
)

var _ product.Source = (*Client)(nil)

// ListProducts fetches GET /api/products.
func (c *Client) ListProducts(ctx context.Context) ([]product.Record, error) {
	data, err := c.do(ctx, "ListProducts", http.MethodGet, nil, "api", "products")
	if err != nil {
		return nil, err
	}
	return product.DecodeRecords(data)
}

// GetProduct fetches GET /api/products/{id}. A 404 is reported as
// product.ErrNotFound.
func (c *Client) GetProduct(ctx context.Context, id string) (*product.Record, error) {
	data, err := c.do(ctx, "GetProduct", http.MethodGet, nil, "api", "products", url.PathEscape(id))
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, product.ErrNotFound
		}
		return nil, err
	}

	r, err := product.DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateProduct submits POST /api/products as multipart/form-data: the draft
// as JSON in the "product" field followed by the image files. An empty 2xx
// body yields a nil record.
func (c *Client) CreateProduct(ctx context.Context, d product.Draft, images []product.Image) (*product.Record, error) {
	var e jx.Encoder
	product.EncodeDraft(&e, d)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField(product.FieldProduct, e.String()); err != nil {
		return nil, errors.Wrap(err, "write product field")
	}
	for _, img := range images {
		if err := writeImage(mw, img); err != nil {
			return nil, errors.Wrapf(err, "write image %q", img.Filename)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart body")
	}

	data, err := c.send(ctx, "CreateProduct", http.MethodPost, mw.FormDataContentType(), buf.Bytes(), "api", "products")
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	r, err := product.DecodeRecord(data)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeImage(mw *multipart.Writer, img product.Image) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+quoteEscaper.Replace(img.Field)+
		`"; filename="`+quoteEscaper.Replace(img.Filename)+`"`)
	ct := img.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(img.Data)
	return err
}

package handler

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

// ListProducts serves the adapted catalog. A failing backend yields an empty
// list so the storefront still renders.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	views, err := h.catalog.List(r.Context())
	if err != nil {
		zctx.From(r.Context()).Error("List products", zap.Error(err))
		views = nil
	}

	var e jx.Encoder
	e.ArrStart()
	for _, v := range views {
		encodeProduct(&e, v)
	}
	e.ArrEnd()
	writeJSON(w, http.StatusOK, &e)
}

// GetProduct serves one adapted product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	v, err := h.catalog.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeProductError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeProduct(&e, *v)
	writeJSON(w, http.StatusOK, &e)
}

const (
	maxUploadSize   = 32 << 20
	maxUploadMemory = 8 << 20
)

// CreateProduct accepts the catalog form as multipart/form-data and forwards
// it to the backend.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	raw := r.MultipartForm.Value[product.FieldProduct]
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "product is required")
		return
	}
	draft, err := product.DecodeDraft([]byte(raw[0]))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	images, err := formImages(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable image")
		return
	}

	v, err := h.catalog.Create(r.Context(), draft, images)
	if err != nil {
		var invalid *product.InvalidDraftError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusBadRequest, invalid.Error())
			return
		}
		h.writeProductError(w, r, err)
		return
	}

	var e jx.Encoder
	if v != nil {
		encodeProduct(&e, *v)
	} else {
		e.ObjStart()
		e.ObjEnd()
	}
	writeJSON(w, http.StatusCreated, &e)
}

func formImages(form *multipart.Form) ([]product.Image, error) {
	var images []product.Image
	for _, field := range []string{product.FieldProductImages, product.FieldVariationImage} {
		for _, fh := range form.File[field] {
			data, err := readFile(fh)
			if err != nil {
				return nil, errors.Wrapf(err, "read %s", fh.Filename)
			}
			images = append(images, product.Image{
				Field:       field,
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}
	return images, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func (h *Handler) writeProductError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, product.ErrNotFound) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}

	lg := zctx.From(r.Context())
	var malformed *product.MalformedProductError
	if errors.As(err, &malformed) {
		lg.Warn("Malformed product", zap.Error(err))
		writeError(w, http.StatusBadGateway, "product data is invalid")
		return
	}

	lg.Error("Get product", zap.Error(err))
	writeError(w, http.StatusBadGateway, "catalog unavailable")
}

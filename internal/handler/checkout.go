package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// GetCheckout returns the amount the payment button should charge.
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	snap := sessionFrom(r.Context()).Cart.Snapshot()

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("amount")
	e.Str(money(snap.Total()))
	e.FieldStart("currency")
	e.Str(h.cfg.Currency)
	e.FieldStart("lineCount")
	e.Int(snap.LineCount())
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// CompleteCheckout receives the payment provider's capture details after a
// successful payment. The cart is emptied in the same step that captures what
// was paid, and the details are only logged.
func (h *Handler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil || !jx.Valid(data) {
		writeError(w, http.StatusBadRequest, "invalid capture details")
		return
	}

	c := sessionFrom(ctx).Cart
	paid := c.Drain()

	fields := []zap.Field{
		zap.String("amount", money(paid.Total())),
		zap.Int("line_count", paid.LineCount()),
	}
	if id := captureID(data); id != "" {
		fields = append(fields, zap.String("capture_id", id))
	}
	zctx.From(ctx).Info("Checkout completed", fields...)

	h.countCartOp(ctx, "clear")
	writeSnapshot(w, c.Snapshot())
}

// captureID returns the top-level "id" of the capture details, if any.
func captureID(data []byte) string {
	var id string
	_ = jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "id" || d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		id = v
		return err
	})
	return id
}

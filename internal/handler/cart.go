package handler

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
)

// GetCart serves the session cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	writeSnapshot(w, sessionFrom(r.Context()).Cart.Snapshot())
}

type addItemRequest struct {
	ProductID string
	Quantity  int
	Size      string
}

// AddItem fetches the product and merges it into the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	req := addItemRequest{Quantity: 1}
	err := readObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			req.ProductID, err = scalar(d)
		case "quantity":
			req.Quantity, err = d.Int()
		case "size":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.Size, err = d.Str()
		default:
			return d.Skip()
		}
		return err
	})
	switch {
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	case req.ProductID == "":
		writeError(w, http.StatusBadRequest, "productId is required")
		return
	}

	v, err := h.catalog.Get(r.Context(), req.ProductID)
	if err != nil {
		h.writeProductError(w, r, err)
		return
	}

	size := strings.TrimSpace(req.Size)
	if size != "" && len(v.Sizes) > 0 && !slices.Contains(v.Sizes, size) {
		writeError(w, http.StatusUnprocessableEntity, "size "+strconv.Quote(size)+" is not available")
		return
	}

	line := cart.Line{
		ProductID: v.ID,
		Name:      v.Name,
		UnitPrice: v.Price,
		Image:     v.Image,
		Quantity:  req.Quantity,
	}
	if size != "" {
		line.Sizes = []string{size}
	}

	c := sessionFrom(r.Context()).Cart
	c.Add(line)
	h.countCartOp(r.Context(), "add")
	writeSnapshot(w, c.Snapshot())
}

// UpdateItem sets the quantity of a line. A quantity below 1 removes it.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	quantity, seen := 0, false
	err := readObject(w, r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		seen = true
		var err error
		quantity, err = d.Int()
		return err
	})
	if err != nil || !seen {
		writeError(w, http.StatusBadRequest, "quantity is required")
		return
	}

	c := sessionFrom(r.Context()).Cart
	c.UpdateQuantity(mux.Vars(r)["key"], quantity)
	h.countCartOp(r.Context(), "update")
	writeSnapshot(w, c.Snapshot())
}

// RemoveItem deletes a line. Removing a missing line succeeds.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c := sessionFrom(r.Context()).Cart
	c.Remove(mux.Vars(r)["key"])
	h.countCartOp(r.Context(), "remove")
	writeSnapshot(w, c.Snapshot())
}

// CartEvents streams a "cart" server-sent event with the current cart and
// then one per change. Changes arriving faster than the client reads are
// coalesced into the latest snapshot.
func (h *Handler) CartEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)
	rc := http.NewResponseController(w)

	updates := make(chan cart.Snapshot, 1)
	c := sessionFrom(ctx).Cart
	unsubscribe := c.Subscribe(func(s cart.Snapshot) {
		// Observers of one store never run concurrently, so this is the
		// only sender.
		select {
		case updates <- s:
		default:
			select {
			case <-updates:
			default:
			}
			updates <- s
		}
	})
	defer unsubscribe()

	h.countCartOp(ctx, "subscribe")

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	send := func(s cart.Snapshot) error {
		var e jx.Encoder
		encodeSnapshot(&e, s)
		if _, err := w.Write(append(append([]byte("event: cart\ndata: "), e.Bytes()...), '\n', '\n')); err != nil {
			return err
		}
		return rc.Flush()
	}

	if err := send(c.Snapshot()); err != nil {
		lg.Debug("Cart stream closed", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(h.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closing:
			return
		case s := <-updates:
			if err := send(s); err != nil {
				lg.Debug("Cart stream closed", zap.Error(err))
				return
			}
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

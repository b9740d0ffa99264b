package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Service serves adapted product views from a Source.
type Service struct {
	source  Source
	adapter *Adapter
	now     func() time.Time
	group   singleflight.Group
}

// NewService creates a Service reading records from source.
func NewService(source Source, adapter *Adapter) *Service {
	return &Service{source: source, adapter: adapter, now: time.Now}
}

// List returns every product that could be adapted. Malformed records are
// logged and left out.
func (s *Service) List(ctx context.Context) ([]View, error) {
	records, err := s.source.ListProducts(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}

	now := s.now()
	views := make([]View, 0, len(records))
	for _, r := range records {
		v, err := s.adapter.Adapt(r, now)
		if err != nil {
			zctx.From(ctx).Warn("Skipping malformed product",
				zap.String("product_id", r.ID),
				zap.Error(err),
			)
			continue
		}
		views = append(views, v)
	}
	return views, nil
}

// Get returns a single product. Concurrent calls for the same id share one
// backend request.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	// The shared request must outlive the caller that happened to start it;
	// the client timeout still bounds it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(id, func() (any, error) {
		return s.source.GetProduct(fetchCtx, id)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, errors.Wrapf(res.Err, "get product %s", id)
	}

	v, err := s.adapter.Adapt(*res.Val.(*Record), s.now())
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create validates d and submits it to the backend. The returned view is nil
// when the backend does not echo the created record.
func (s *Service) Create(ctx context.Context, d Draft, images []Image) (*View, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	r, err := s.source.CreateProduct(ctx, d, images)
	if err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	if r == nil {
		return nil, nil
	}

	zctx.From(ctx).Info("Product created",
		zap.String("product_id", r.ID),
		zap.Int("images", len(images)),
	)
	v, err := s.adapter.Adapt(*r, s.now())
	if err != nil {
		return nil, err
	}
	return &v, nil
}

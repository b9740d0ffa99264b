package product

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockSource struct {
	records []Record
	listErr error
	getErr  error
	gets    atomic.Int32
	release chan struct{}

	created   []Draft
	images    []Image
	createErr error
	echo      *Record
}

func (m *mockSource) ListProducts(_ context.Context) ([]Record, error) {
	return m.records, m.listErr
}

func (m *mockSource) GetProduct(_ context.Context, id string) (*Record, error) {
	m.gets.Add(1)
	if m.release != nil {
		<-m.release
	}
	if m.getErr != nil {
		return nil, m.getErr
	}
	for i := range m.records {
		if m.records[i].ID == id {
			r := m.records[i]
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockSource) CreateProduct(_ context.Context, d Draft, images []Image) (*Record, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, d)
	m.images = append(m.images, images...)
	return m.echo, nil
}

func newTestService(src Source) *Service {
	s := NewService(src, NewAdapter(""))
	s.now = func() time.Time { return testNow }
	return s
}

// --- Tests ---

func TestServiceList_SkipsMalformed(t *testing.T) {
	bad := newRecord()
	bad.ID = "8"
	bad.Price = "n/a"

	src := &mockSource{records: []Record{newRecord(), bad}}
	views, err := newTestService(src).List(context.Background())

	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, int64(7), views[0].ID)
}

func TestServiceList_SourceError(t *testing.T) {
	src := &mockSource{listErr: errors.New("connection refused")}

	_, err := newTestService(src).List(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list products")
}

func TestServiceGet(t *testing.T) {
	src := &mockSource{records: []Record{newRecord()}}

	v, err := newTestService(src).Get(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "Linen Shirt", v.Name)

	_, err = newTestService(src).Get(context.Background(), "99")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestServiceGet_Malformed(t *testing.T) {
	r := newRecord()
	r.Price = "free"
	src := &mockSource{records: []Record{r}}

	_, err := newTestService(src).Get(context.Background(), "7")

	var mpe *MalformedProductError
	require.ErrorAs(t, err, &mpe)
	assert.Equal(t, "price", mpe.Field)
}

func TestServiceGet_SharesConcurrentFetches(t *testing.T) {
	src := &mockSource{records: []Record{newRecord()}, release: make(chan struct{})}
	svc := newTestService(src)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*View, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := svc.Get(context.Background(), "7")
			assert.NoError(t, err)
			results[i] = v
		}()
	}

	require.Eventually(t, func() bool { return src.gets.Load() == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight request.
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, int32(1), src.gets.Load())
	for _, v := range results {
		require.NotNil(t, v)
		assert.Equal(t, int64(7), v.ID)
	}
}

func TestServiceGet_CallerCancelled(t *testing.T) {
	src := &mockSource{records: []Record{newRecord()}, release: make(chan struct{})}
	defer close(src.release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestService(src).Get(ctx, "7")
	require.ErrorIs(t, err, context.Canceled)
}

func TestServiceCreate(t *testing.T) {
	echo := newRecord()
	echo.ID = "42"
	echo.Name = "Wool Scarf"
	src := &mockSource{echo: &echo}

	d := Draft{Name: "Wool Scarf", Price: decimal.RequireFromString("25")}
	img := Image{Field: FieldProductImages, Filename: "scarf.jpg", Data: []byte("jpg")}

	v, err := newTestService(src).Create(context.Background(), d, []Image{img})
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, int64(42), v.ID)
	assert.Equal(t, "Wool Scarf", v.Name)
	require.Len(t, src.created, 1)
	assert.Equal(t, []Image{img}, src.images)
}

func TestServiceCreate_NoEcho(t *testing.T) {
	src := &mockSource{}

	v, err := newTestService(src).Create(context.Background(), Draft{Name: "Scarf"}, nil)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Len(t, src.created, 1)
}

func TestServiceCreate_InvalidDraftNotSubmitted(t *testing.T) {
	src := &mockSource{}

	_, err := newTestService(src).Create(context.Background(), Draft{Name: " "}, nil)

	var ide *InvalidDraftError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, "name", ide.Field)
	assert.Empty(t, src.created)
}

func TestServiceCreate_SourceError(t *testing.T) {
	src := &mockSource{createErr: errors.New("connection refused")}

	_, err := newTestService(src).Create(context.Background(), Draft{Name: "Scarf"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create product")
}

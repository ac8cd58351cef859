package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/internal/cart"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

func TestCartExpiryJobReleasesIdleCarts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, b := uuid.New(), uuid.New()
	carts := &fakeIdleCarts{pages: [][]models.Order{{{ID: a}, {ID: b}}}}
	releaser := &fakeReleaser{units: 3}
	job := newCartExpiryJob(t, carts, releaser, 24*time.Hour, 10)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-24 * time.Hour); !carts.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, carts.cutoff)
	}
	if carts.limit != 10 {
		t.Fatalf("expected batch 10, got %d", carts.limit)
	}
	if len(releaser.released) != 2 || releaser.released[0] != a || releaser.released[1] != b {
		t.Fatalf("unexpected released carts %v", releaser.released)
	}
	if releaser.reason != cartExpiryReleaseNote {
		t.Fatalf("unexpected release reason %q", releaser.reason)
	}
	if !releaser.cutoff.Equal(carts.cutoff) {
		t.Fatalf("expected release to recheck idleness against %s, got %s", carts.cutoff, releaser.cutoff)
	}
}

func TestCartExpiryJobSkipsStateConflictsAndCombinesFailures(t *testing.T) {
	converted, broken, fine := uuid.New(), uuid.New(), uuid.New()
	carts := &fakeIdleCarts{pages: [][]models.Order{{{ID: converted}, {ID: broken}, {ID: fine}}}}
	releaser := &fakeReleaser{errs: map[uuid.UUID]error{
		converted: pkgerrors.New(pkgerrors.CodeStateConflict, "order is not an open cart"),
		broken:    errors.New("db down"),
	}}
	job := newCartExpiryJob(t, carts, releaser, 0, 0)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected the failed release to surface")
	}
	if len(releaser.released) != 3 {
		t.Fatalf("expected every cart attempted, got %d", len(releaser.released))
	}
	if job.ttl != defaultCartTTL || job.batch != defaultCartBatchSize {
		t.Fatalf("expected defaults, got ttl=%v batch=%d", job.ttl, job.batch)
	}
}

func TestCartExpiryJobPagesUntilShortBatch(t *testing.T) {
	carts := &fakeIdleCarts{pages: [][]models.Order{
		{{ID: uuid.New()}, {ID: uuid.New()}},
		{{ID: uuid.New()}},
	}}
	releaser := &fakeReleaser{}
	job := newCartExpiryJob(t, carts, releaser, time.Hour, 2)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if carts.calls != 2 {
		t.Fatalf("expected 2 list calls, got %d", carts.calls)
	}
	if len(releaser.released) != 3 {
		t.Fatalf("expected 3 releases, got %d", len(releaser.released))
	}
}

func TestCartExpiryJobListErrorIsReturned(t *testing.T) {
	job := newCartExpiryJob(t, &fakeIdleCarts{err: errors.New("boom")}, &fakeReleaser{}, 0, 0)
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newCartExpiryJob(t *testing.T, carts *fakeIdleCarts, releaser *fakeReleaser, ttl time.Duration, batch int) *cartExpiryJob {
	t.Helper()
	jobIface, err := NewCartExpiryJob(CartExpiryJobParams{
		Logger:    testLogger(),
		Carts:     carts,
		Releaser:  releaser,
		TTL:       ttl,
		BatchSize: batch,
	})
	if err != nil {
		t.Fatalf("NewCartExpiryJob: %v", err)
	}
	return jobIface.(*cartExpiryJob)
}

type fakeIdleCarts struct {
	pages  [][]models.Order
	calls  int
	cutoff time.Time
	limit  int
	err    error
}

func (f *fakeIdleCarts) ListIdleCarts(ctx context.Context, idleSince time.Time, limit int) ([]models.Order, error) {
	f.cutoff, f.limit = idleSince, limit
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.pages) {
		f.calls++
		return nil, nil
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

type fakeReleaser struct {
	released []uuid.UUID
	cutoff   time.Time
	reason   string
	units    int
	errs     map[uuid.UUID]error
}

func (f *fakeReleaser) ReleaseCart(ctx context.Context, orderID uuid.UUID, idleBefore time.Time, reason string) (*cart.ReleaseResult, error) {
	f.released = append(f.released, orderID)
	f.cutoff = idleBefore
	f.reason = reason
	if err := f.errs[orderID]; err != nil {
		return nil, err
	}
	return &cart.ReleaseResult{OrderID: orderID, ReleasedItems: 1, ReleasedUnits: f.units}, nil
}

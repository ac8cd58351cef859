package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stockledger/internal/cart"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

const (
	defaultCartTTL        = 72 * time.Hour
	defaultCartBatchSize  = 200
	maxCartPagesPerRun    = 10
	cartExpiryReleaseNote = "cart expired"
)

type idleCartLister interface {
	ListIdleCarts(ctx context.Context, idleSince time.Time, limit int) ([]models.Order, error)
}

type cartReleaser interface {
	ReleaseCart(ctx context.Context, orderID uuid.UUID, idleBefore time.Time, reason string) (*cart.ReleaseResult, error)
}

type CartExpiryJobParams struct {
	Logger    *logger.Logger
	Carts     idleCartLister
	Releaser  cartReleaser
	TTL       time.Duration
	BatchSize int
}

func NewCartExpiryJob(params CartExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Releaser == nil {
		return nil, fmt.Errorf("cart service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultCartTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultCartBatchSize
	}
	return &cartExpiryJob{
		logg:     params.Logger,
		carts:    params.Carts,
		releaser: params.Releaser,
		ttl:      ttl,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type cartExpiryJob struct {
	logg     *logger.Logger
	carts    idleCartLister
	releaser cartReleaser
	ttl      time.Duration
	batch    int
	now      func() time.Time
}

func (j *cartExpiryJob) Name() string { return "cart-expiry" }

// Run releases the reservations of carts idle longer than the TTL.
// A cart that changed state between listing and release is skipped.
func (j *cartExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	var (
		errs     error
		expired  int
		units    int
		skipped  int
		failures int
	)
	for page := 0; page < maxCartPagesPerRun; page++ {
		carts, err := j.carts.ListIdleCarts(ctx, cutoff, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list idle carts: %w", err))
		}
		progressed := false
		for _, order := range carts {
			result, err := j.releaser.ReleaseCart(ctx, order.ID, cutoff, cartExpiryReleaseNote)
			switch {
			case err == nil:
				expired++
				units += result.ReleasedUnits
				progressed = true
			case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
				skipped++
			default:
				failures++
				errs = multierr.Append(errs, fmt.Errorf("release cart %s: %w", order.ID, err))
			}
		}
		if len(carts) < j.batch || !progressed {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"carts_expired":  expired,
		"units_released": units,
		"carts_skipped":  skipped,
		"carts_failed":   failures,
	})
	j.logg.Info(logCtx, "cart expiry loop complete")
	return errs
}

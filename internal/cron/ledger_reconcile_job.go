package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stockledger/internal/flags"
	"github.com/angelmondragon/stockledger/internal/movements"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

const defaultReconcileBatchSize = 500

type stockItemIDLister interface {
	ListIDsAfter(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type ledgerReconciler interface {
	Reconcile(ctx context.Context, stockItemID uuid.UUID) (*models.StockItem, movements.Drift, error)
}

type driftFlagger interface {
	HasOpen(ctx context.Context, stockItemID uuid.UUID, kind enums.InventoryFlagKind) (bool, error)
	RaiseDetached(ctx context.Context, input flags.RaiseInput) (*models.InventoryFlag, error)
}

type LedgerReconcileJobParams struct {
	Logger     *logger.Logger
	Items      stockItemIDLister
	Reconciler ledgerReconciler
	Flags      driftFlagger
	BatchSize  int
}

func NewLedgerReconcileJob(params LedgerReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Items == nil {
		return nil, fmt.Errorf("stock item repository required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if params.Flags == nil {
		return nil, fmt.Errorf("flag service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatchSize
	}
	return &ledgerReconcileJob{
		logg:       params.Logger,
		items:      params.Items,
		reconciler: params.Reconciler,
		flags:      params.Flags,
		batch:      batch,
	}, nil
}

type ledgerReconcileJob struct {
	logg       *logger.Logger
	items      stockItemIDLister
	reconciler ledgerReconciler
	flags      driftFlagger
	batch      int
}

func (j *ledgerReconcileJob) Name() string { return "ledger-reconcile" }

// Run folds every stock item's ledger and flags items whose stored
// counters disagree. Items with an open drift flag are not re-flagged.
func (j *ledgerReconcileJob) Run(ctx context.Context) error {
	var (
		errs    error
		checked int
		drifted int
		raised  int
		cursor  uuid.UUID
	)
	for {
		ids, err := j.items.ListIDsAfter(ctx, cursor, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list stock items: %w", err))
		}
		for _, id := range ids {
			checked++
			flagged, err := j.check(ctx, id)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", id, err))
				continue
			}
			if flagged != nil {
				drifted++
				if *flagged {
					raised++
				}
			}
		}
		if len(ids) < j.batch {
			break
		}
		cursor = ids[len(ids)-1]
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"items_checked": checked,
		"items_drifted": drifted,
		"flags_raised":  raised,
	})
	j.logg.Info(logCtx, "ledger reconciliation complete")
	return errs
}

// check returns nil when the item is consistent, otherwise whether a new
// flag was raised.
func (j *ledgerReconcileJob) check(ctx context.Context, id uuid.UUID) (*bool, error) {
	item, drift, err := j.reconciler.Reconcile(ctx, id)
	if err != nil {
		return nil, err
	}
	if drift.Consistent() {
		return nil, nil
	}

	itemCtx := j.logg.WithStockItemID(ctx, id.String())
	itemCtx = j.logg.WithFields(itemCtx, map[string]any{
		"stored_count":    drift.Stored.Count,
		"stored_reserved": drift.Stored.Reserved,
		"ledger_count":    drift.Ledger.Count,
		"ledger_reserved": drift.Ledger.Reserved,
	})
	j.logg.Warn(itemCtx, "ledger drift detected")

	raised := false
	open, err := j.flags.HasOpen(ctx, id, enums.FlagLedgerDrift)
	if err != nil {
		return nil, err
	}
	if open {
		return &raised, nil
	}
	_, err = j.flags.RaiseDetached(ctx, flags.RaiseInput{
		Item: *item,
		Kind: enums.FlagLedgerDrift,
		Details: map[string]any{
			"ledgerCount":    drift.Ledger.Count,
			"ledgerReserved": drift.Ledger.Reserved,
		},
	})
	if err != nil {
		return nil, err
	}
	raised = true
	return &raised, nil
}

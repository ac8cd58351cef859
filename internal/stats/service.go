// Package stats aggregates read-only inventory statistics for a store.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/stockledger/internal/stockitems"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

var timeNowUTC = func() time.Time { return time.Now().UTC() }

// Stats is the inventory summary for a store over a window.
type Stats struct {
	StoreID         uuid.UUID       `json:"storeId"`
	Window          Window          `json:"window"`
	TotalStockValue decimal.Decimal `json:"totalStockValue"`
	LowStockCount   int             `json:"lowStockCount"`
	StockIn         int             `json:"stockIn"`
	StockInChange   float64         `json:"stockInChange"`
	StockOut        int             `json:"stockOut"`
	StockOutChange  float64         `json:"stockOutChange"`
	Count           int             `json:"count"`
	Reserved        int             `json:"reserved"`
	Available       int             `json:"available"`
	GeneratedAt     time.Time       `json:"generatedAt"`
}

type itemLister interface {
	ListByStore(ctx context.Context, storeID uuid.UUID) ([]stockitems.ValuedItem, error)
}

type movementSummer interface {
	SumMagnitude(ctx context.Context, storeID uuid.UUID, types []enums.MovementType, from, to time.Time) (int, error)
}

type statsCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	StatsKey(storeID, window string) string
}

type Service interface {
	StoreStats(ctx context.Context, storeID uuid.UUID, q WindowQuery) (*Stats, error)
}

type ServiceParams struct {
	Items             itemLister
	Movements         movementSummer
	Cache             statsCache
	CacheTTL          time.Duration
	LowStockThreshold int
	Logger            *logger.Logger
}

type service struct {
	items     itemLister
	movements movementSummer
	cache     statsCache
	cacheTTL  time.Duration
	threshold int
	logg      *logger.Logger
}

// NewService builds the aggregator. Cache is optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Items == nil {
		return nil, fmt.Errorf("stock item lister required")
	}
	if params.Movements == nil {
		return nil, fmt.Errorf("movement summer required")
	}
	threshold := params.LowStockThreshold
	if threshold <= 0 {
		threshold = stockitems.DefaultLowStockThreshold
	}
	return &service{
		items:     params.Items,
		movements: params.Movements,
		cache:     params.Cache,
		cacheTTL:  params.CacheTTL,
		threshold: threshold,
		logg:      params.Logger,
	}, nil
}

func (s *service) StoreStats(ctx context.Context, storeID uuid.UUID, q WindowQuery) (*Stats, error) {
	if storeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	now := timeNowUTC()
	window, err := ResolveWindow(q, now)
	if err != nil {
		return nil, err
	}

	key := ""
	if s.cache != nil && s.cacheTTL > 0 {
		key = s.cache.StatsKey(storeID.String(), window.Label)
		if cached, ok := s.fromCache(ctx, key); ok {
			return cached, nil
		}
	}

	out, err := s.compute(ctx, storeID, window)
	if err != nil {
		return nil, err
	}
	out.GeneratedAt = now

	if key != "" {
		if payload, err := json.Marshal(out); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
				s.warn(ctx, "stats cache write failed", err)
			}
		}
	}
	return out, nil
}

func (s *service) compute(ctx context.Context, storeID uuid.UUID, window Window) (*Stats, error) {
	items, err := s.items.ListByStore(ctx, storeID)
	if err != nil {
		return nil, err
	}

	out := &Stats{StoreID: storeID, Window: window, TotalStockValue: decimal.Zero}
	for _, item := range items {
		out.TotalStockValue = out.TotalStockValue.Add(item.CostPrice.Mul(decimal.NewFromInt(int64(item.Count))))
		if item.Count <= item.Threshold(s.threshold) {
			out.LowStockCount++
		}
		out.Count += item.Count
		out.Reserved += item.Reserved
	}
	out.Available = out.Count - out.Reserved

	prior := window.Prior()
	var priorIn, priorOut int
	if out.StockIn, err = s.movements.SumMagnitude(ctx, storeID, enums.StockInTypes, window.From, window.To); err != nil {
		return nil, err
	}
	if priorIn, err = s.movements.SumMagnitude(ctx, storeID, enums.StockInTypes, prior.From, prior.To); err != nil {
		return nil, err
	}
	if out.StockOut, err = s.movements.SumMagnitude(ctx, storeID, enums.StockOutTypes, window.From, window.To); err != nil {
		return nil, err
	}
	if priorOut, err = s.movements.SumMagnitude(ctx, storeID, enums.StockOutTypes, prior.From, prior.To); err != nil {
		return nil, err
	}
	out.StockInChange = PercentChange(priorIn, out.StockIn)
	out.StockOutChange = PercentChange(priorOut, out.StockOut)
	return out, nil
}

func (s *service) fromCache(ctx context.Context, key string) (*Stats, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.warn(ctx, "stats cache read failed", err)
		}
		return nil, false
	}
	var cached Stats
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		s.warn(ctx, "stats cache entry unreadable", err)
		return nil, false
	}
	return &cached, true
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

// PercentChange compares current against prior. A zero prior yields 100 when
// current is non-zero and 0 otherwise.
func PercentChange(prior, current int) float64 {
	if prior == 0 {
		if current != 0 {
			return 100
		}
		return 0
	}
	change := float64(current-prior) / float64(prior) * 100
	return math.Round(change*100) / 100
}

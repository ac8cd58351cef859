package stats

import (
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
)

const (
	Preset7Days  = "7d"
	Preset30Days = "30d"
	Preset90Days = "90d"

	maxCustomWindow = 366 * 24 * time.Hour
)

var presetDurations = map[string]time.Duration{
	Preset7Days:  7 * 24 * time.Hour,
	Preset30Days: 30 * 24 * time.Hour,
	Preset90Days: 90 * 24 * time.Hour,
}

// WindowQuery selects the reporting window: a preset or an explicit range.
type WindowQuery struct {
	Preset string
	From   *time.Time
	To     *time.Time
}

// Window is a half-open [From, To) interval.
type Window struct {
	Label string    `json:"label"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
}

// Prior returns the window of equal length that ends where w starts.
func (w Window) Prior() Window {
	span := w.To.Sub(w.From)
	return Window{Label: w.Label + ":prior", From: w.From.Add(-span), To: w.From}
}

// ResolveWindow turns a query into a concrete window ending at now for presets.
func ResolveWindow(q WindowQuery, now time.Time) (Window, error) {
	now = now.UTC()
	if q.From != nil || q.To != nil {
		if q.From == nil || q.To == nil {
			return Window{}, pkgerrors.New(pkgerrors.CodeValidation, "from and to must be provided together")
		}
		from, to := q.From.UTC(), q.To.UTC()
		if !to.After(from) {
			return Window{}, pkgerrors.New(pkgerrors.CodeValidation, "to must be after from")
		}
		if to.Sub(from) > maxCustomWindow {
			return Window{}, pkgerrors.New(pkgerrors.CodeValidation, "window may not exceed 366 days")
		}
		return Window{
			Label: fmt.Sprintf("custom:%d-%d", from.Unix(), to.Unix()),
			From:  from,
			To:    to,
		}, nil
	}

	preset := strings.ToLower(strings.TrimSpace(q.Preset))
	if preset == "" {
		preset = Preset30Days
	}
	span, ok := presetDurations[preset]
	if !ok {
		return Window{}, pkgerrors.New(pkgerrors.CodeValidation, "preset must be one of 7d, 30d, 90d")
	}
	return Window{Label: preset, From: now.Add(-span), To: now}, nil
}

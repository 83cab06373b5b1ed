package engine

import (
	"context"
	"log/slog"

	"github.com/rickgao/stockwatch/internal/model"
)

// AlertSource provides the active alerts the engine evaluates.
type AlertSource interface {
	AlertsBySymbol(ctx context.Context, symbol string) ([]model.Alert, error)
	DeleteAlertByID(ctx context.Context, id int64) error
}

// TriggerSink receives the trigger events of fired alerts.
type TriggerSink interface {
	Dispatch(ev model.TriggerEvent)
}

// TriggerSinkFunc is a function adapter for TriggerSink.
type TriggerSinkFunc func(model.TriggerEvent)

func (f TriggerSinkFunc) Dispatch(ev model.TriggerEvent) { f(ev) }

// Config holds alert engine configuration.
type Config struct {
	// ConsumeOnFire deletes an alert after it fires. When false, alerts
	// persist and fire again on every fresh crossing.
	ConsumeOnFire bool
}

// Engine evaluates price updates against active alerts and emits one
// trigger event per crossed threshold.
//
// Crossing is edge-triggered: an Above alert fires only when the previous
// cached price was below the threshold and the new one reaches it, so an
// alert fires once per crossing rather than on every poll past the
// threshold. With no previous observation there is no edge, so nothing
// fires.
type Engine struct {
	cfg    Config
	alerts AlertSource
	sink   TriggerSink
	logger *slog.Logger
}

// New creates an Engine.
func New(cfg Config, alerts AlertSource, sink TriggerSink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:    cfg,
		alerts: alerts,
		sink:   sink,
		logger: logger,
	}
}

// HandleUpdate evaluates one cache update. prev is the quote the update
// superseded; hadPrev is false on a symbol's first observation. The caller
// guarantees the cache already holds curr, so no evaluator sees a price
// newer than the cached one.
func (e *Engine) HandleUpdate(ctx context.Context, prev model.Quote, hadPrev bool, curr model.Quote) error {
	if !hadPrev {
		return nil
	}

	alerts, err := e.alerts.AlertsBySymbol(ctx, curr.Symbol)
	if err != nil {
		return err
	}

	for _, alert := range alerts {
		if !crossed(alert, prev.Price, curr.Price) {
			continue
		}

		e.sink.Dispatch(model.TriggerEvent{
			UserID:    alert.UserID,
			Symbol:    alert.Symbol,
			Direction: alert.Direction,
			Threshold: alert.Threshold,
			Price:     curr.Price,
		})

		e.logger.Debug("alert fired",
			"user_id", alert.UserID,
			"symbol", alert.Symbol,
			"direction", alert.Direction,
			"threshold", alert.Threshold,
			"price", curr.Price,
		)

		if e.cfg.ConsumeOnFire {
			if err := e.alerts.DeleteAlertByID(ctx, alert.ID); err != nil {
				e.logger.Warn("failed to consume fired alert",
					"alert_id", alert.ID,
					"err", err,
				)
			}
		}
	}

	return nil
}

// crossed reports whether the price moved across the alert threshold
// between the previous and current observation.
func crossed(alert model.Alert, prevPrice, currPrice float64) bool {
	switch alert.Direction {
	case model.Above:
		return prevPrice < alert.Threshold && currPrice >= alert.Threshold
	case model.Below:
		return prevPrice > alert.Threshold && currPrice <= alert.Threshold
	default:
		return false
	}
}

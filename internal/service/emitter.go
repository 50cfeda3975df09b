// Package service implements the escrow-and-resolution engine: market
// registry, acceptance coordination, the resolution protocol, and the
// oracle-pegged settlement path. Every entry point is a complete state
// transition: all preconditions are validated before any state is mutated,
// and conflicting transitions are excluded by conditional store updates plus
// a per-market lock.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/alanyoungcy/friendbet/internal/domain"
	"github.com/alanyoungcy/friendbet/internal/notify"
)

// VaultManager is the manager identity the engine binds to every market's
// vault buckets. Only engine services withdraw collateral.
const VaultManager = "friendbet-engine"

// Emitter fans a lifecycle event out to the audit log, the signal bus
// (pub/sub and durable stream), and the operator notifier. Bus and notifier
// failures are logged but never fail the transition that emitted the event;
// the audit row is the record of truth.
type Emitter struct {
	audit    domain.AuditStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	clock    domain.Clock
	logger   *slog.Logger
}

// NewEmitter creates an Emitter. bus and notifier may be nil.
func NewEmitter(audit domain.AuditStore, bus domain.SignalBus, notifier *notify.Notifier, clock domain.Clock, logger *slog.Logger) *Emitter {
	return &Emitter{
		audit:    audit,
		bus:      bus,
		notifier: notifier,
		clock:    clock,
		logger:   logger.With(slog.String("component", "emitter")),
	}
}

// Emit records and publishes one lifecycle event.
func (e *Emitter) Emit(ctx context.Context, eventType string, marketID int64, attrs map[string]string) {
	event := domain.Event{
		Type:       eventType,
		MarketID:   marketID,
		At:         e.clock.Now(),
		Attributes: attrs,
	}

	if e.audit != nil {
		detail := make(map[string]any, len(attrs))
		for k, v := range attrs {
			detail[k] = v
		}
		if err := e.audit.Log(ctx, marketID, eventType, detail); err != nil {
			e.logger.ErrorContext(ctx, "audit log failed",
				slog.String("event", eventType),
				slog.Int64("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
	}

	if e.bus != nil {
		payload, err := json.Marshal(event)
		if err != nil {
			e.logger.ErrorContext(ctx, "event marshal failed",
				slog.String("event", eventType),
				slog.String("error", err.Error()),
			)
			return
		}
		if err := e.bus.Publish(ctx, domain.EventChannel, payload); err != nil {
			e.logger.WarnContext(ctx, "event publish failed",
				slog.String("event", eventType),
				slog.String("error", err.Error()),
			)
		}
		if err := e.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
			e.logger.WarnContext(ctx, "event stream append failed",
				slog.String("event", eventType),
				slog.String("error", err.Error()),
			)
		}
	}

	if e.notifier != nil {
		body := ""
		if marketID > 0 {
			body = "market " + strconv.FormatInt(marketID, 10)
		}
		if err := e.notifier.Notify(ctx, eventType, eventType, body); err != nil {
			e.logger.WarnContext(ctx, "notifier dispatch failed",
				slog.String("event", eventType),
				slog.String("error", err.Error()),
			)
		}
	}
}

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/outcomex/settle/internal/domain"
)

// ReceiptSigner signs settlement receipts so the service layer never
// depends on the concrete key-management implementation.
type ReceiptSigner interface {
	SignResolution(marketID, outcome string, settledAt time.Time) (string, error)
	SignClaim(marketID, claimer string, gross, fee, net int64, settledAt time.Time) (string, error)
}

// publishEvent fans a settlement event out on its pub/sub channel and the
// durable stream. Bus failures never unwind a committed instruction; they
// are logged and the caller moves on.
func publishEvent(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, channel string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.ErrorContext(ctx, "service: marshal event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	if pubErr := bus.Publish(ctx, channel, payload); pubErr != nil {
		logger.WarnContext(ctx, "service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", pubErr.Error()),
		)
	}

	if streamErr := bus.StreamAppend(ctx, domain.StreamEvents, payload); streamErr != nil {
		logger.WarnContext(ctx, "service: stream append failed",
			slog.String("stream", domain.StreamEvents),
			slog.String("error", streamErr.Error()),
		)
	}
}

// Package quote prices a payment before it is sent.
package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/models"
	"github.com/akylbek/payment-system/wallet/internal/spsp"
	"github.com/akylbek/payment-system/wallet/internal/telemetry"
)

type DestinationResolver interface {
	Resolve(ctx context.Context, raw string) (*models.Destination, error)
}

type Quoter interface {
	Quote(ctx context.Context, params spsp.QuoteParams) (*spsp.QuoteResult, error)
}

type Engine struct {
	resolver DestinationResolver
	quoter   Quoter
	logger   *zap.Logger
}

func NewEngine(resolver DestinationResolver, quoter Quoter, logger *zap.Logger) *Engine {
	return &Engine{resolver: resolver, quoter: quoter, logger: logger.Named("quote")}
}

// Quote returns the counterpart of whichever amount the request fixes. When both are
// given the source amount is fixed. The fixed side is echoed exactly as supplied.
func (e *Engine) Quote(ctx context.Context, source *models.User, req models.QuoteRequest) (*models.Quote, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "quote.Quote")
	defer span.End()
	span.SetAttributes(attribute.String("destination", req.Destination))

	q, err := e.quote(ctx, source, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.QuotesTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	telemetry.QuotesTotal.WithLabelValues("ok").Inc()
	return q, nil
}

func (e *Engine) quote(ctx context.Context, source *models.User, req models.QuoteRequest) (*models.Quote, error) {
	fixSource := req.SourceAmount != ""
	fixed := req.SourceAmount
	if !fixSource {
		fixed = req.DestinationAmount
	}
	if fixed == "" {
		return nil, fmt.Errorf("%w: one of sourceAmount or destinationAmount is required", models.ErrInvalidRequest)
	}
	if err := models.ValidateAmount(fixed); err != nil {
		return nil, err
	}

	dest, err := e.resolver.Resolve(ctx, req.Destination)
	if err != nil {
		return nil, err
	}
	log := e.logger.With(
		zap.String("destination", dest.AccountURI),
		zap.String("amount", fixed),
		zap.Bool("fixed_source", fixSource),
	)

	if dest.Local {
		return &models.Quote{SourceAmount: fixed, DestinationAmount: fixed}, nil
	}

	params := spsp.QuoteParams{
		SourceAccount:      source.Account,
		DestinationAccount: dest.AccountURI,
	}
	if fixSource {
		params.SourceAmount = fixed
	} else {
		params.DestinationAmount = fixed
	}

	res, err := e.quoter.Quote(ctx, params)
	if err != nil {
		log.Warn("Quote request failed", zap.Error(err))
		return nil, models.ErrNoQuoteAvailable
	}

	counterpart := res.DestinationAmount
	if !fixSource {
		counterpart = res.SourceAmount
	}
	if _, err := decimal.NewFromString(counterpart); err != nil {
		log.Warn("Quote returned an unparseable amount", zap.String("counterpart", counterpart), zap.Error(err))
		return nil, models.ErrNoQuoteAvailable
	}

	if fixSource {
		return &models.Quote{SourceAmount: fixed, DestinationAmount: counterpart}, nil
	}
	return &models.Quote{SourceAmount: counterpart, DestinationAmount: fixed}, nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, models.ErrUnresolvableDestination):
		return "unresolvable"
	default:
		return "no_quote"
	}
}

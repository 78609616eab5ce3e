// Package payment executes conditional transfers and records their outcome exactly once
// per execution condition.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/config"
	"github.com/akylbek/payment-system/wallet/internal/events"
	"github.com/akylbek/payment-system/wallet/internal/interfaces"
	"github.com/akylbek/payment-system/wallet/internal/ledger"
	"github.com/akylbek/payment-system/wallet/internal/models"
	"github.com/akylbek/payment-system/wallet/internal/resolver"
	"github.com/akylbek/payment-system/wallet/internal/spsp"
	"github.com/akylbek/payment-system/wallet/internal/telemetry"
)

type DestinationResolver interface {
	Resolve(ctx context.Context, raw string) (*models.Destination, error)
}

type TransferSubmitter interface {
	SubmitConditionalTransfer(ctx context.Context, params spsp.TransferParams) (*spsp.TransferResult, error)
}

type EventPublisher interface {
	Publish(ev events.Event)
}

type Executor struct {
	cfg       *config.Config
	resolver  DestinationResolver
	submitter TransferSubmitter
	repo      interfaces.PaymentRepository
	locker    Locker
	events    EventPublisher
	logger    *zap.Logger

	now func() time.Time
}

func NewExecutor(
	cfg *config.Config,
	resolver DestinationResolver,
	submitter TransferSubmitter,
	repo interfaces.PaymentRepository,
	locker Locker,
	publisher EventPublisher,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		cfg:       cfg,
		resolver:  resolver,
		submitter: submitter,
		repo:      repo,
		locker:    locker,
		events:    publisher,
		logger:    logger.Named("payment"),
		now:       time.Now,
	}
}

// Pay sends req on behalf of source and returns the completed record.
//
// Once the transfer has been submitted the rest of Pay ignores cancellation of ctx:
// value has moved and the record must be written.
func (x *Executor) Pay(ctx context.Context, source *models.User, req models.PayRequest) (*models.Payment, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "payment.Pay")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.id", req.ID),
		attribute.String("payment.destination", req.Destination),
	)

	p, err := x.pay(ctx, source, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.PaymentsTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	span.SetAttributes(attribute.String("payment.transfer", p.Transfer))
	telemetry.PaymentsTotal.WithLabelValues("success").Inc()
	return p, nil
}

func (x *Executor) pay(ctx context.Context, source *models.User, req models.PayRequest) (*models.Payment, error) {
	if _, err := uuid.Parse(req.ID); err != nil {
		return nil, fmt.Errorf("%w: payment id must be a UUID", models.ErrInvalidRequest)
	}
	if err := models.ValidateAmount(req.SourceAmount); err != nil {
		return nil, err
	}
	if err := models.ValidateAmount(req.DestinationAmount); err != nil {
		return nil, err
	}

	dest, err := x.resolver.Resolve(ctx, req.Destination)
	if err != nil {
		return nil, err
	}

	lockKey := "payment_lock:" + req.ID
	locked, err := x.locker.Acquire(ctx, lockKey, x.cfg.Cache.PaymentLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire payment lock: %w", err)
	}
	if !locked {
		return nil, models.ErrPaymentInProgress
	}
	defer func() {
		if err := x.locker.Release(context.WithoutCancel(ctx), lockKey); err != nil {
			x.logger.Warn("Failed to release payment lock", zap.String("payment_id", req.ID), zap.Error(err))
		}
	}()

	existing, err := x.repo.GetByID(ctx, req.ID)
	switch {
	case err == nil && existing.State == models.StateSuccess:
		if existing.SourceUser == nil || *existing.SourceUser != source.ID {
			return nil, fmt.Errorf("%w: payment id %s belongs to another sender", models.ErrDuplicateRecord, req.ID)
		}
		x.logger.Info("Payment already completed", zap.String("payment_id", req.ID))
		return existing, nil
	case err != nil && !errors.Is(err, models.ErrPaymentNotFound):
		return nil, fmt.Errorf("failed to load payment %s: %w", req.ID, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	sender := resolver.LocalPayee(x.cfg, source)
	if source.Account != "" {
		sender.Account = source.Account
	}

	params := spsp.TransferParams{
		PaymentID:          req.ID,
		SourceUsername:     source.Username,
		SourceAccount:      sender.Account,
		DestinationAccount: dest.AccountURI,
		SourceAmount:       req.SourceAmount,
		DestinationAmount:  req.DestinationAmount,
		Memo:               req.Message,
	}
	res, err := x.submitter.SubmitConditionalTransfer(ctx, params)
	if err != nil {
		if ledger.IsInsufficientFunds(err) {
			return nil, models.ErrInsufficientFunds
		}
		x.logger.Error("Conditional transfer failed", zap.String("payment_id", req.ID), zap.Error(err))
		return nil, &models.PaymentFailedError{Err: err}
	}

	log := x.logger.With(
		zap.String("payment_id", req.ID),
		zap.String("execution_condition", res.ExecutionCondition),
		zap.String("transfer", res.TransferID),
	)

	p, err := x.record(ctx, source, sender, dest, req, res)
	if err != nil {
		// The transfer is on the ledger but not recorded here; condition and transfer
		// are the join keys for reconciliation.
		log.Error("Failed to record completed transfer", zap.Error(err))
		if errors.Is(err, models.ErrDuplicateRecord) {
			return nil, err
		}
		return nil, &models.PaymentFailedError{Err: err}
	}
	log.Info("Payment completed", zap.String("record", p.ID))

	x.events.Publish(completedEvent(x.cfg, source, dest, p))
	return p, nil
}

// record converges on the single row for the returned condition, which Receiver Setup may
// already have created as pending.
func (x *Executor) record(
	ctx context.Context,
	source *models.User,
	sender models.Payee,
	dest *models.Destination,
	req models.PayRequest,
	res *spsp.TransferResult,
) (*models.Payment, error) {
	completedAt := x.now().UTC()

	seed := &models.Payment{
		ID:                  req.ID,
		SourceUser:          &source.ID,
		SourceAccount:       sender.Account,
		SourceName:          sender.Name,
		SourceImageURL:      sender.ImageURL,
		SourceAmount:        req.SourceAmount,
		DestinationUser:     dest.UserID,
		DestinationAccount:  dest.AccountURI,
		DestinationAmount:   req.DestinationAmount,
		DestinationName:     dest.Name,
		DestinationImageURL: dest.ImageURL,
		Transfer:            res.TransferID,
		ExecutionCondition:  res.ExecutionCondition,
		State:               models.StateSuccess,
		CompletedAt:         &completedAt,
	}
	if req.Message != "" {
		seed.Message = &req.Message
	}

	p, created, err := x.repo.FindOrCreateByCondition(ctx, seed)
	if err != nil {
		return nil, err
	}
	if created {
		return p, nil
	}

	if err := settledElsewhere(p, res.TransferID, dest.AccountURI); err != nil {
		return nil, err
	}
	if p.State == models.StateSuccess {
		return p, nil
	}

	p.SourceUser = seed.SourceUser
	p.SourceAccount = seed.SourceAccount
	p.SourceName = seed.SourceName
	p.SourceImageURL = seed.SourceImageURL
	p.SourceAmount = seed.SourceAmount
	p.DestinationAmount = seed.DestinationAmount
	p.DestinationAccount = seed.DestinationAccount
	if p.DestinationUser == nil {
		p.DestinationUser = seed.DestinationUser
	}
	if p.DestinationName == "" {
		p.DestinationName = seed.DestinationName
	}
	if p.DestinationImageURL == "" {
		p.DestinationImageURL = seed.DestinationImageURL
	}
	if seed.Message != nil {
		p.Message = seed.Message
	}
	p.Transfer = seed.Transfer
	p.State = models.StateSuccess
	p.CompletedAt = seed.CompletedAt

	updated, ok, err := x.repo.CompletePending(ctx, p, req.ID)
	if err != nil {
		return nil, err
	}
	if ok {
		return updated, nil
	}

	// Another completion got there first.
	current, err := x.repo.GetByCondition(ctx, res.ExecutionCondition)
	if err != nil {
		return nil, err
	}
	if err := settledElsewhere(current, res.TransferID, dest.AccountURI); err != nil {
		return nil, err
	}
	if current.State != models.StateSuccess {
		return nil, fmt.Errorf("%w: condition record %s left in state %s", models.ErrDuplicateRecord, current.ID, current.State)
	}
	return current, nil
}

// settledElsewhere reports a row for the condition that belongs to another transfer or account.
func settledElsewhere(p *models.Payment, transfer, account string) error {
	if p.Transfer != "" && p.Transfer != transfer {
		return fmt.Errorf("%w: condition already settled by transfer %s", models.ErrDuplicateRecord, p.Transfer)
	}
	if p.DestinationAccount != "" && p.DestinationAccount != account {
		return fmt.Errorf("%w: condition belongs to %s", models.ErrDuplicateRecord, p.DestinationAccount)
	}
	return nil
}

func completedEvent(cfg *config.Config, source *models.User, dest *models.Destination, p *models.Payment) events.Event {
	ev := events.Event{
		Type:               events.PaymentCompleted,
		PaymentID:          p.ID,
		ExecutionCondition: p.ExecutionCondition,
		Transfer:           p.Transfer,
		SourceAccount:      p.SourceAccount,
		SourceAmount:       p.SourceAmount,
		DestinationAccount: p.DestinationAccount,
		DestinationAmount:  p.DestinationAmount,
		Display:            models.FormatAmount(p.SourceAmount, cfg.Ledger.CurrencySymbol),
		Recipients:         []string{source.Username},
	}
	if p.Message != nil {
		ev.Message = *p.Message
	}
	if p.CompletedAt != nil {
		ev.OccurredAt = *p.CompletedAt
	}
	if dest.Username != "" && dest.Username != source.Username {
		ev.Recipients = append(ev.Recipients, dest.Username)
	}
	return ev
}

func outcome(err error) string {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, models.ErrUnresolvableDestination):
		return "unresolvable"
	case errors.Is(err, models.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, models.ErrPaymentInProgress):
		return "in_progress"
	case errors.Is(err, models.ErrDuplicateRecord):
		return "duplicate"
	default:
		return "failed"
	}
}

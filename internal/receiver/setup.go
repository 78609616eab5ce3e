// Package receiver prepares this wallet's users to be paid: it issues payment requests
// and advertises payee details to paying wallets.
package receiver

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/config"
	"github.com/akylbek/payment-system/wallet/internal/events"
	"github.com/akylbek/payment-system/wallet/internal/interfaces"
	"github.com/akylbek/payment-system/wallet/internal/models"
	"github.com/akylbek/payment-system/wallet/internal/resolver"
	"github.com/akylbek/payment-system/wallet/internal/spsp"
	"github.com/akylbek/payment-system/wallet/internal/telemetry"
)

type ConditionGenerator interface {
	Generate(username, amount string) spsp.PaymentRequest
}

type EventPublisher interface {
	Publish(ev events.Event)
}

type Setup struct {
	cfg       *config.Config
	users     interfaces.UserRepository
	repo      interfaces.PaymentRepository
	generator ConditionGenerator
	events    EventPublisher
	logger    *zap.Logger
}

func NewSetup(
	cfg *config.Config,
	users interfaces.UserRepository,
	repo interfaces.PaymentRepository,
	generator ConditionGenerator,
	publisher EventPublisher,
	logger *zap.Logger,
) *Setup {
	return &Setup{
		cfg:       cfg,
		users:     users,
		repo:      repo,
		generator: generator,
		events:    publisher,
		logger:    logger.Named("receiver"),
	}
}

// CreateRequest registers a pending incoming payment for username and returns the terms
// the sender must pay against.
func (s *Setup) CreateRequest(ctx context.Context, username, amount string, sender *models.SenderIdentity, memo string) (*models.ReceiverParams, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "receiver.CreateRequest")
	defer span.End()
	span.SetAttributes(attribute.String("receiver.username", username))

	params, err := s.createRequest(ctx, username, amount, sender, memo)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.ReceiverRequestsTotal.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	telemetry.ReceiverRequestsTotal.WithLabelValues("ok").Inc()
	return params, nil
}

func (s *Setup) createRequest(ctx context.Context, username, amount string, sender *models.SenderIdentity, memo string) (*models.ReceiverParams, error) {
	user, err := s.lookup(ctx, username)
	if err != nil {
		return nil, err
	}

	rendered, err := s.render(amount)
	if err != nil {
		return nil, err
	}

	req := s.generator.Generate(user.Username, rendered)
	payee := resolver.LocalPayee(s.cfg, user)

	p := &models.Payment{
		ID:                  uuid.NewString(),
		DestinationUser:     &user.ID,
		DestinationAccount:  payee.Account,
		DestinationAmount:   rendered,
		DestinationName:     payee.Name,
		DestinationImageURL: payee.ImageURL,
		ExecutionCondition:  req.Condition,
		State:               models.StatePending,
	}
	if sender != nil {
		p.SourceAccount = sender.Account
		p.SourceName = sender.Name
		p.SourceImageURL = sender.ImageURL
	}
	if memo != "" {
		p.Message = &memo
	}

	stored, created, err := s.repo.FindOrCreateByCondition(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment request: %w", err)
	}
	if !created && stored.DestinationAccount != payee.Account {
		return nil, fmt.Errorf("%w: condition belongs to %s", models.ErrDuplicateRecord, stored.DestinationAccount)
	}

	s.logger.Info("Payment request created",
		zap.String("username", user.Username),
		zap.String("amount", rendered),
		zap.String("execution_condition", req.Condition),
		zap.Bool("created", created),
	)

	s.events.Publish(events.Event{
		Type:               events.ReceiverCreated,
		PaymentID:          stored.ID,
		ExecutionCondition: req.Condition,
		SourceAccount:      p.SourceAccount,
		DestinationAccount: payee.Account,
		DestinationAmount:  rendered,
		Message:            memo,
	})

	return &models.ReceiverParams{
		Address:   req.Address,
		Amount:    rendered,
		ExpiresAt: req.ExpiresAt,
		Condition: req.Condition,
	}, nil
}

// Payee describes a local user to paying wallets.
func (s *Setup) Payee(ctx context.Context, username string) (*models.Payee, error) {
	user, err := s.lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	payee := resolver.LocalPayee(s.cfg, user)
	return &payee, nil
}

func (s *Setup) lookup(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, models.ErrUnknownReceiver
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up receiver %s: %w", username, err)
	}
	return user, nil
}

// render fixes the amount at the ledger scale, rejecting amounts the ledger cannot hold.
func (s *Setup) render(amount string) (string, error) {
	if err := models.ValidateAmount(amount); err != nil {
		return "", err
	}
	d := decimal.RequireFromString(amount)
	scale := s.cfg.Ledger.Scale
	if !d.Round(scale).Equal(d) {
		return "", fmt.Errorf("%w: amount %s has more than %d decimal places", models.ErrInvalidRequest, amount, scale)
	}
	return d.StringFixed(scale), nil
}

func outcome(err error) string {
	switch {
	case errors.Is(err, models.ErrUnknownReceiver):
		return "unknown_receiver"
	case errors.Is(err, models.ErrInvalidRequest):
		return "invalid"
	default:
		return "failed"
	}
}

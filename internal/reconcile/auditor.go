// Package reconcile joins transfers on the ledger with local payment records using the
// execution condition and transfer id.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/wallet/internal/interfaces"
	"github.com/akylbek/payment-system/wallet/internal/ledger"
	"github.com/akylbek/payment-system/wallet/internal/models"
)

type Status string

const (
	StatusMatched       Status = "matched"
	StatusMissingRecord Status = "missing_record"
	StatusMismatch      Status = "mismatch"
)

type TransferFetcher interface {
	GetTransfer(ctx context.Context, transferURI string) (*ledger.Transfer, error)
}

type Report struct {
	Status      Status          `json:"status"`
	Condition   string          `json:"execution_condition"`
	Transfer    string          `json:"transfer"`
	LedgerState string          `json:"ledger_state,omitempty"`
	Detail      string          `json:"detail,omitempty"`
	Record      *models.Payment `json:"record,omitempty"`
}

type Auditor struct {
	ledger TransferFetcher
	repo   interfaces.PaymentRepository
	logger *zap.Logger
}

func NewAuditor(ledger TransferFetcher, repo interfaces.PaymentRepository, logger *zap.Logger) *Auditor {
	return &Auditor{ledger: ledger, repo: repo, logger: logger.Named("reconcile")}
}

// Audit checks that the transfer recorded on the ledger has exactly one matching local
// record. condition may be empty, in which case the transfer's own condition is used.
func (a *Auditor) Audit(ctx context.Context, condition, transferID string) (*Report, error) {
	if transferID == "" {
		return nil, fmt.Errorf("%w: transfer is required", models.ErrInvalidRequest)
	}

	transfer, err := a.ledger.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transfer %s: %w", transferID, err)
	}
	if condition == "" {
		condition = transfer.ExecutionCondition
	}

	report := &Report{
		Condition:   condition,
		Transfer:    transferID,
		LedgerState: transfer.State,
	}

	if transfer.ExecutionCondition != condition {
		report.Status = StatusMismatch
		report.Detail = "ledger transfer carries condition " + transfer.ExecutionCondition
		return report, nil
	}

	record, err := a.repo.GetByCondition(ctx, condition)
	if errors.Is(err, models.ErrPaymentNotFound) {
		report.Status = StatusMissingRecord
		a.logger.Warn("Ledger transfer has no payment record",
			zap.String("execution_condition", condition),
			zap.String("transfer", transferID),
		)
		return report, nil
	}
	if err != nil {
		return nil, err
	}
	report.Record = record

	switch {
	case !sameTransfer(record.Transfer, transferID, transfer.ID):
		report.Status = StatusMismatch
		report.Detail = "record holds transfer " + record.Transfer
	case record.State != models.StateSuccess:
		report.Status = StatusMismatch
		report.Detail = "record is " + string(record.State)
	default:
		report.Status = StatusMatched
	}
	return report, nil
}

// sameTransfer compares transfer references that may be bare ids or ledger URIs.
func sameTransfer(recorded string, refs ...string) bool {
	if recorded == "" {
		return false
	}
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if recorded == ref || strings.HasSuffix(recorded, "/"+ref) || strings.HasSuffix(ref, "/"+recorded) {
			return true
		}
	}
	return false
}

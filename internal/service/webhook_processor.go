package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/WebOleg/new-clean-payment-plugin-sub000/internal/security"
)

type WebhookOutcome string

const (
	OutcomeSuccess    WebhookOutcome = "success"
	OutcomeFailure    WebhookOutcome = "failure"
	OutcomePending    WebhookOutcome = "pending"
	OutcomeCancelled  WebhookOutcome = "cancelled"
	OutcomeRefunded   WebhookOutcome = "refunded"
	OutcomeChargeback WebhookOutcome = "chargeback"
)

// Remote status passed to the state machine for each outcome.
var outcomeRemoteStatus = map[WebhookOutcome]string{
	OutcomeSuccess:   "completed",
	OutcomeFailure:   "failed",
	OutcomePending:   "pending",
	OutcomeCancelled: "cancelled",
}

var eventTypeTable = map[string]WebhookOutcome{
	"completed":        OutcomeSuccess,
	"approved":         OutcomeSuccess,
	"success":          OutcomeSuccess,
	"failed":           OutcomeFailure,
	"declined":         OutcomeFailure,
	"error":            OutcomeFailure,
	"pending":          OutcomePending,
	"cancelled":        OutcomeCancelled,
	"canceled":         OutcomeCancelled,
	"refunded":         OutcomeRefunded,
	"refund.completed": OutcomeRefunded,
	"chargeback":       OutcomeChargeback,
}

// DispatchEventType maps an event type, with or without the "payment."
// prefix, onto its outcome.
func DispatchEventType(eventType string) (WebhookOutcome, error) {
	normalized := strings.ToLower(strings.TrimSpace(eventType))
	normalized = strings.TrimPrefix(normalized, "payment.")
	if outcome, ok := eventTypeTable[normalized]; ok {
		return outcome, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
}

type WebhookEvent struct {
	EventType        string              `json:"event_type"`
	TransactionToken string              `json:"transaction_token"`
	EventID          string              `json:"event_id"`
	ReferenceNumber  string              `json:"reference_number"`
	Amount           decimal.NullDecimal `json:"amount"`
	RefundAmount     decimal.NullDecimal `json:"refund_amount"`
	ChargebackAmount decimal.NullDecimal `json:"chargeback_amount"`
	Currency         string              `json:"currency"`
	FailureReason    string              `json:"failure_reason"`
	OrderID          *uint               `json:"-"`
	RawOrderID       json.RawMessage     `json:"order_id"`
}

type WebhookResult struct {
	EventID   string
	Message   string
	Duplicate bool
}

// WebhookProcessor verifies, validates and applies payment notifications.
// Every stage is logged; application is delegated to the state machine.
type WebhookProcessor struct {
	secret    string
	machine   OrderStateMachine
	ledger    EventLedger
	ledgerTTL time.Duration
	// claimTTL bounds an in-flight claim so a crashed worker frees the id.
	claimTTL time.Duration
	logger   *slog.Logger
}

const DefaultWebhookClaimTTL = 5 * time.Minute

func NewWebhookProcessor(secret string, machine OrderStateMachine, ledger EventLedger, ledgerTTL time.Duration, logger *slog.Logger) *WebhookProcessor {
	if ledgerTTL <= 0 {
		ledgerTTL = 72 * time.Hour
	}
	claimTTL := min(DefaultWebhookClaimTTL, ledgerTTL)
	return &WebhookProcessor{secret: secret, machine: machine, ledger: ledger, ledgerTTL: ledgerTTL, claimTTL: claimTTL, logger: logger}
}

func (p *WebhookProcessor) Process(ctx context.Context, body []byte, signature string) (WebhookResult, error) {
	log := p.logger.With("stage", "received")
	log.DebugContext(ctx, "webhook received", "bytes", len(body))

	if p.secret == "" {
		p.logger.WarnContext(ctx, "WEBHOOK SIGNATURE NOT VERIFIED: no webhook secret configured, accepting unsigned delivery", "stage", "signature")
	} else if !security.VerifySignature(body, signature, p.secret) {
		p.logger.WarnContext(ctx, "webhook signature rejected", "stage", "signature")
		return WebhookResult{}, ErrSignatureInvalid
	}

	ev, err := ParseWebhookEvent(body)
	if err != nil {
		p.logger.WarnContext(ctx, "webhook payload rejected", "stage", "structure", "error", err)
		return WebhookResult{}, err
	}

	generated := ev.EventID == ""
	if generated {
		ev.EventID = uuid.NewString()
	}
	log = p.logger.With("event_id", ev.EventID, "event_type", ev.EventType)

	outcome, err := DispatchEventType(ev.EventType)
	if err != nil {
		log.WarnContext(ctx, "webhook event rejected", "stage", "dispatch", "error", err)
		if rerr := p.machine.RecordRejection(ctx, ev.OrderID, ev.TransactionToken, fmt.Sprintf("rejected webhook %s: unknown event type", ev.EventType)); rerr != nil {
			log.ErrorContext(ctx, "record webhook rejection failed", "error", rerr)
		}
		return WebhookResult{EventID: ev.EventID}, err
	}

	fingerprint := security.HashPayload(body)
	if !generated {
		state, err := p.ledger.Begin(ctx, ev.EventID, fingerprint, p.claimTTL)
		if err != nil {
			log.ErrorContext(ctx, "event ledger unavailable", "error", err)
			return WebhookResult{EventID: ev.EventID}, fmt.Errorf("event ledger: %w", err)
		}
		switch state {
		case LedgerStateDuplicate:
			log.InfoContext(ctx, "duplicate webhook ignored", "stage", "applied")
			return WebhookResult{EventID: ev.EventID, Message: "event already processed", Duplicate: true}, nil
		case LedgerStateConflict:
			log.WarnContext(ctx, "webhook event id reused with different payload", "stage", "rejected")
			return WebhookResult{EventID: ev.EventID}, ErrEventReplayConflict
		case LedgerStateInProgress:
			return WebhookResult{EventID: ev.EventID}, ErrEventInProgress
		}
	}

	res, err := p.apply(ctx, ev, outcome, body)
	// the claim must be settled even when the delivery context is gone
	settleCtx := context.WithoutCancel(ctx)
	if err != nil {
		if !generated {
			if rerr := p.ledger.Release(settleCtx, ev.EventID, fingerprint); rerr != nil {
				log.ErrorContext(ctx, "release webhook event failed", "error", rerr)
			}
		}
		log.WarnContext(ctx, "webhook rejected", "stage", "rejected", "outcome", outcome, "error", err)
		return WebhookResult{EventID: ev.EventID}, err
	}
	if !generated {
		if cerr := p.ledger.Complete(settleCtx, ev.EventID, fingerprint, p.ledgerTTL); cerr != nil {
			log.ErrorContext(ctx, "complete webhook event failed", "error", cerr)
		}
	}

	message := res.Message
	if message == "" {
		message = "webhook processed"
	}
	log.InfoContext(ctx, "webhook applied", "stage", "applied", "outcome", outcome, "order_id", res.Order.ID, "changed", res.Applied)
	return WebhookResult{EventID: ev.EventID, Message: message, Duplicate: !res.Applied}, nil
}

func (p *WebhookProcessor) apply(ctx context.Context, ev WebhookEvent, outcome WebhookOutcome, raw []byte) (StatusResult, error) {
	switch outcome {
	case OutcomeRefunded:
		return p.machine.AnnotateRefund(ctx, RefundUpdate{
			OrderID:          ev.OrderID,
			TransactionToken: ev.TransactionToken,
			RefundAmount:     ev.RefundAmount,
			Amount:           ev.Amount,
			ReferenceNumber:  ev.ReferenceNumber,
			RawPayload:       raw,
			Source:           SourceWebhook,
			EventID:          ev.EventID,
		})
	case OutcomeChargeback:
		amount := ev.ChargebackAmount
		if !amount.Valid {
			amount = ev.Amount
		}
		return p.machine.AnnotateChargeback(ctx, ChargebackUpdate{
			OrderID:          ev.OrderID,
			TransactionToken: ev.TransactionToken,
			Amount:           amount,
			ReferenceNumber:  ev.ReferenceNumber,
			Reason:           ev.FailureReason,
			Source:           SourceWebhook,
			EventID:          ev.EventID,
		})
	default:
		return p.machine.UpdateStatus(ctx, StatusUpdate{
			OrderID:          ev.OrderID,
			TransactionToken: ev.TransactionToken,
			RemoteStatus:     outcomeRemoteStatus[outcome],
			ReferenceNumber:  ev.ReferenceNumber,
			Amount:           ev.Amount,
			Currency:         ev.Currency,
			RawPayload:       raw,
			Source:           SourceWebhook,
			EventID:          ev.EventID,
		})
	}
}

// ParseWebhookEvent requires a JSON object with event_type and
// transaction_token.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return WebhookEvent{}, fmt.Errorf("%w: body must be a JSON object", ErrStructureInvalid)
	}
	var ev WebhookEvent
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrStructureInvalid, err)
	}
	ev.EventType = strings.TrimSpace(ev.EventType)
	ev.TransactionToken = strings.TrimSpace(ev.TransactionToken)
	ev.EventID = strings.TrimSpace(ev.EventID)
	var missing []string
	if ev.EventType == "" {
		missing = append(missing, "event_type")
	}
	if ev.TransactionToken == "" {
		missing = append(missing, "transaction_token")
	}
	if len(missing) > 0 {
		return WebhookEvent{}, fmt.Errorf("%w: missing %s", ErrStructureInvalid, strings.Join(missing, ", "))
	}
	orderID, err := parseOrderID(ev.RawOrderID)
	if err != nil {
		return WebhookEvent{}, fmt.Errorf("%w: %v", ErrStructureInvalid, err)
	}
	ev.OrderID = orderID
	return ev, nil
}

func parseOrderID(raw json.RawMessage) (*uint, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		s = string(raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return nil, errors.New("order_id must be a positive integer")
	}
	id := uint(n)
	return &id, nil
}

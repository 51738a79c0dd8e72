package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/pos-payments/internal"
	ledgerDatamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/ledger"
	orderDatamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/order"
	"github.com/frahmantamala/pos-payments/internal/core/events"
	"github.com/frahmantamala/pos-payments/internal/gateway"
	"github.com/frahmantamala/pos-payments/internal/lock"
	"github.com/frahmantamala/pos-payments/pkg/logger"
)

const DefaultCallbackTimeout = 10 * time.Second

type ResultStatus string

const (
	ResultReconciled   ResultStatus = "reconciled"
	ResultUnresolvable ResultStatus = "unresolvable"
)

type Result struct {
	Status         ResultStatus
	Gateway        string
	OrderRef       string
	TxnRef         string
	Outcome        gateway.Outcome
	Order          *orderDatamodel.Order
	Entry          *ledgerDatamodel.PaymentTransaction
	PaymentChanged bool
	StatusAdvanced bool
	LedgerCreated  bool
}

type OrderApplier interface {
	Apply(tx *gorm.DB, orderRef, txnRef string, outcome gateway.Outcome, cb *gateway.Callback) (*OrderUpdateResult, error)
}

type LedgerUpserterAPI interface {
	Upsert(tx *gorm.DB, cb *gateway.Callback, o *orderDatamodel.Order, outcome gateway.Outcome, txnRef string) (*ledgerDatamodel.PaymentTransaction, bool, error)
}

type ServiceAPI interface {
	Reconcile(ctx context.Context, gatewayName string, payload map[string]interface{}) (*Result, error)
}

type Options struct {
	Timeout time.Duration
	LockTTL time.Duration
	Locker  lock.Locker
	Events  events.Publisher
}

// Service is the entry point for inbound payment callbacks. It owns the transaction:
// the order update and the ledger upsert commit together or not at all.
type Service struct {
	gateways *gateway.Registry
	txm      TxManager
	orders   OrderApplier
	ledger   LedgerUpserterAPI
	locker   lock.Locker
	events   events.Publisher
	timeout  time.Duration
	lockTTL  time.Duration
	logger   *slog.Logger
}

func NewService(gateways *gateway.Registry, txm TxManager, orders OrderApplier, ledger LedgerUpserterAPI, logger *slog.Logger, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultCallbackTimeout
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = opts.Timeout + 5*time.Second
	}
	if opts.Locker == nil {
		opts.Locker = lock.Noop{}
	}
	return &Service{
		gateways: gateways,
		txm:      txm,
		orders:   orders,
		ledger:   ledger,
		locker:   opts.Locker,
		events:   opts.Events,
		timeout:  opts.Timeout,
		lockTTL:  opts.LockTTL,
		logger:   logger,
	}
}

var _ ServiceAPI = (*Service)(nil)

func (s *Service) Reconcile(ctx context.Context, gatewayName string, payload map[string]interface{}) (*Result, error) {
	g, ok := s.gateways.Get(gatewayName)
	if !ok {
		return nil, internal.ErrUnknownGateway.WithCause(fmt.Errorf("gateway %q", gatewayName))
	}

	cb, err := g.Normalize(payload)
	if errors.Is(err, gateway.ErrUnresolvableCallback) {
		logger.From(ctx).Warn("callback has no order reference, acknowledged without changes",
			"gateway", gatewayName,
			"payload_keys", len(payload))
		return &Result{Status: ResultUnresolvable, Gateway: gatewayName}, nil
	}
	if err != nil {
		return nil, err
	}

	outcome := g.Classify(payload)
	ctx = logger.With(ctx,
		"gateway", gatewayName,
		"order_ref", cb.OrderRef,
		"txn_ref", cb.TxnRef,
		"outcome", string(outcome))

	ctx, cancel := internal.WithTimeout(ctx, s.timeout)
	defer cancel()

	release := s.obtainLock(ctx, cb.OrderRef)
	defer release()

	res, err := s.apply(ctx, cb, outcome)
	if err != nil {
		err = classify(ctx, err)
		logger.From(ctx).Error("payment callback aborted", "error", err)
		s.publish(ctx, s.failedEvent(cb, err))
		return nil, err
	}

	logger.From(ctx).Info("payment callback reconciled",
		"order_id", res.Order.ID,
		"payment_status", res.Order.PaymentStatus,
		"order_status", res.Order.Status,
		"payment_changed", res.PaymentChanged,
		"status_advanced", res.StatusAdvanced,
		"ledger_entry_id", res.Entry.ID,
		"ledger_created", res.LedgerCreated)

	s.publish(ctx, events.NewPaymentReconciledEvent(events.ReconciledParams{
		TenantID:       res.Order.TenantID,
		OrderID:        res.Order.ID,
		LedgerEntryID:  res.Entry.ID,
		Gateway:        res.Gateway,
		TxnRef:         res.TxnRef,
		Outcome:        string(outcome),
		PaymentStatus:  res.Order.PaymentStatus,
		OrderStatus:    res.Order.Status,
		Amount:         res.Entry.Amount.StringFixed(2),
		Currency:       res.Entry.Currency,
		PaymentChanged: res.PaymentChanged,
		LedgerCreated:  res.LedgerCreated,
	}))

	return res, nil
}

// apply runs one unit of work. Every error or panic rolls the transaction back.
func (s *Service) apply(ctx context.Context, cb *gateway.Callback, outcome gateway.Outcome) (res *Result, err error) {
	tx, err := s.txm.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during reconciliation: %v", r)
			res = nil
		}
		if committed {
			return
		}
		if rbErr := s.txm.Rollback(tx); rbErr != nil {
			logger.From(ctx).Error("rollback failed", "error", rbErr)
		}
	}()

	upd, err := s.orders.Apply(tx, cb.OrderRef, cb.TxnRef, outcome, cb)
	if err != nil {
		return nil, err
	}

	entry, created, err := s.ledger.Upsert(tx, cb, upd.Order, outcome, cb.TxnRef)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := s.txm.Commit(tx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true

	return &Result{
		Status:         ResultReconciled,
		Gateway:        cb.Gateway,
		OrderRef:       cb.OrderRef,
		TxnRef:         cb.TxnRef,
		Outcome:        outcome,
		Order:          upd.Order,
		Entry:          entry,
		PaymentChanged: upd.PaymentChanged,
		StatusAdvanced: upd.StatusAdvanced,
		LedgerCreated:  created,
	}, nil
}

// obtainLock is best effort: the unique attempt index and the order row lock keep
// correctness when Redis is unavailable.
func (s *Service) obtainLock(ctx context.Context, orderRef string) func() {
	l, err := s.locker.Obtain(ctx, lock.OrderKey(orderRef), s.lockTTL)
	if err != nil {
		logger.From(ctx).Warn("proceeding without callback lock", "error", err)
		return func() {}
	}
	return func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			logger.From(ctx).Warn("failed to release callback lock", "error", err)
		}
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logger.From(ctx).Error("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

func (s *Service) failedEvent(cb *gateway.Callback, err error) events.Event {
	code := string(internal.ErrCodeTransactionalFailure)
	if appErr, ok := internal.IsAppError(err); ok {
		code = string(appErr.Code)
	}
	return events.NewPaymentCallbackFailedEvent(cb.Gateway, cb.OrderRef, cb.TxnRef, code, err.Error())
}

// classify maps a failed unit of work onto the error taxonomy.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, internal.ErrOrderNotFound) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return internal.ErrReconcileTimeout.WithCause(err)
	}
	return internal.NewTransactionalError("payment callback could not be applied", err)
}

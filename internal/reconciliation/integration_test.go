package reconciliation_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/frahmantamala/pos-payments/internal"
	ledgerDatamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/ledger"
	orderDatamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/order"
	"github.com/frahmantamala/pos-payments/internal/core/events"
	"github.com/frahmantamala/pos-payments/internal/gateway"
	"github.com/frahmantamala/pos-payments/internal/gateway/mpesa"
	"github.com/frahmantamala/pos-payments/internal/ledger"
	ledgerPostgres "github.com/frahmantamala/pos-payments/internal/ledger/postgres"
	"github.com/frahmantamala/pos-payments/internal/order"
	orderPostgres "github.com/frahmantamala/pos-payments/internal/order/postgres"
	"github.com/frahmantamala/pos-payments/internal/reconciliation"
)

// failingLedgerStore fails inserts after the order update already ran in the same transaction.
type failingLedgerStore struct {
	ledger.RepositoryAPI
}

func (f failingLedgerStore) Insert(*gorm.DB, *ledgerDatamodel.PaymentTransaction) error {
	return errors.New("disk full")
}

// stallingLedgerStore blocks until the transaction's context expires.
type stallingLedgerStore struct {
	ledger.RepositoryAPI
}

func (s stallingLedgerStore) FindByAttempt(tx *gorm.DB, _, _ string) (*ledgerDatamodel.PaymentTransaction, error) {
	<-tx.Statement.Context.Done()
	return nil, tx.Statement.Context.Err()
}

var _ = ginkgo.Describe("Reconciliation against SQLite", func() {
	var (
		db        *gorm.DB
		orders    *orderPostgres.OrderRepository
		entries   *ledgerPostgres.LedgerRepository
		publisher *capturePublisher
		registry  *gateway.Registry
	)

	newService := func(store ledger.RepositoryAPI, timeout time.Duration) *reconciliation.Service {
		return reconciliation.NewService(
			registry,
			reconciliation.NewGormTxManager(db),
			reconciliation.NewOrderUpdater(orders, discard),
			reconciliation.NewLedgerUpserter(store, "KES"),
			discard,
			reconciliation.Options{Timeout: timeout, Events: publisher},
		)
	}

	seedOrder := func(id, paymentStatus, status string) {
		o := &orderDatamodel.Order{
			ID:             id,
			TenantID:       "tenant-1",
			OrderNumber:    "ORD-" + id,
			TotalAmount:    decimal.NewFromInt(500),
			Currency:       "KES",
			CustomerName:   "Wanjiku",
			CustomerPhone:  "+254712345678",
			PaymentStatus:  paymentStatus,
			Status:         status,
			PaymentDetails: datatypes.JSONMap{"table": "T4"},
		}
		gomega.Expect(orders.Create(db, o)).To(gomega.Succeed())
	}

	loadOrder := func(id string) *orderDatamodel.Order {
		o, err := orders.FindByID(db, id)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return o
	}

	ledgerRows := func(orderID string) []*ledgerDatamodel.PaymentTransaction {
		rows, err := entries.ListByOrder(db, orderID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return rows
	}

	countRows := func(model interface{}) int64 {
		var n int64
		gomega.Expect(db.Model(model).Count(&n).Error).To(gomega.Succeed())
		return n
	}

	ginkgo.BeforeEach(func() {
		var err error
		// a file rather than :memory: because an expired transaction may discard its connection
		dsn := filepath.Join(ginkgo.GinkgoT().TempDir(), "payments.db")
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
			TranslateError: true,
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		sqlDB, err := db.DB()
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		sqlDB.SetMaxOpenConns(1)
		ginkgo.DeferCleanup(sqlDB.Close)

		err = db.AutoMigrate(&orderDatamodel.Order{}, &orderDatamodel.OrderStatusChange{}, &ledgerDatamodel.PaymentTransaction{})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		orders = orderPostgres.NewOrderRepository()
		entries = ledgerPostgres.NewLedgerRepository()
		publisher = &capturePublisher{}
		registry = gateway.NewRegistry(mpesa.New("KE"))
	})

	scenarioOnePayload := func() map[string]interface{} {
		return map[string]interface{}{
			"orderId":            "O1",
			"ResultCode":         "0",
			"MpesaReceiptNumber": "R1",
			"Amount":             json.Number("500"),
		}
	}

	ginkgo.It("should mark a pending order paid, confirm it and record a completed ledger row", func() {
		// Given
		seedOrder("O1", order.PaymentStatusPending, order.StatusPending)
		svc := newService(entries, 0)

		// When
		res, err := svc.Reconcile(context.Background(), mpesa.Name, scenarioOnePayload())

		// Then
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(res.StatusAdvanced).To(gomega.BeTrue())

		o := loadOrder("O1")
		gomega.Expect(o.PaymentStatus).To(gomega.Equal(order.PaymentStatusPaid))
		gomega.Expect(o.Status).To(gomega.Equal(order.StatusConfirmed))
		gomega.Expect(*o.PaymentMethod).To(gomega.Equal("mpesa"))
		gomega.Expect(o.PaidAt).ToNot(gomega.BeNil())
		gomega.Expect(o.PaymentDetails).To(gomega.HaveKeyWithValue("transactionId", "R1"))
		gomega.Expect(o.PaymentDetails).To(gomega.HaveKeyWithValue("gateway", "mpesa"))
		gomega.Expect(o.PaymentDetails).To(gomega.HaveKey("paidAt"))
		gomega.Expect(o.PaymentDetails).To(gomega.HaveKeyWithValue("table", "T4"))

		rows := ledgerRows("O1")
		gomega.Expect(rows).To(gomega.HaveLen(1))
		gomega.Expect(rows[0].Status).To(gomega.Equal(ledger.StatusCompleted))
		gomega.Expect(rows[0].GatewayTransactionID).To(gomega.Equal("R1"))
		gomega.Expect(rows[0].Amount.Equal(decimal.NewFromInt(500))).To(gomega.BeTrue())
		gomega.Expect(rows[0].Currency).To(gomega.Equal("KES"))
		gomega.Expect(rows[0].TenantID).To(gomega.Equal("tenant-1"))
		gomega.Expect(rows[0].CompletedAt).ToNot(gomega.BeNil())
		gomega.Expect(rows[0].FailedAt).To(gomega.BeNil())
		gomega.Expect(rows[0].GatewayResponse).To(gomega.HaveKeyWithValue("MpesaReceiptNumber", "R1"))

		changes, err := orders.ListStatusChanges(db, "O1")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(changes).To(gomega.HaveLen(1))
		gomega.Expect(changes[0].ActorID).To(gomega.Equal(internal.SystemActor))
		gomega.Expect(changes[0].Note).To(gomega.Equal("payment confirmed via mpesa (R1)"))

		gomega.Expect(publisher.types()).To(gomega.Equal([]string{events.EventTypePaymentReconciled}))
	})

	ginkgo.It("should converge to one ledger row when the same callback is delivered again", func() {
		// Given
		seedOrder("O1", order.PaymentStatusPending, order.StatusPending)
		svc := newService(entries, 0)
		_, err := svc.Reconcile(context.Background(), mpesa.Name, scenarioOnePayload())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		firstOrder := loadOrder("O1")
		firstRow := ledgerRows("O1")[0]

		// When
		for i := 0; i < 3; i++ {
			res, err := svc.Reconcile(context.Background(), mpesa.Name, scenarioOnePayload())
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(res.LedgerCreated).To(gomega.BeFalse())
			gomega.Expect(res.PaymentChanged).To(gomega.BeFalse())
			gomega.Expect(res.StatusAdvanced).To(gomega.BeFalse())
		}

		// Then
		rows := ledgerRows("O1")
		gomega.Expect(rows).To(gomega.HaveLen(1))
		gomega.Expect(rows[0].ID).To(gomega.Equal(firstRow.ID))
		gomega.Expect(*rows[0].CompletedAt).To(gomega.BeTemporally("==", *firstRow.CompletedAt))
		gomega.Expect(rows[0].GatewayMetadata).To(gomega.Equal(firstRow.GatewayMetadata))
		gomega.Expect(rows[0].GatewayResponse).To(gomega.Equal(firstRow.GatewayResponse))

		o := loadOrder("O1")
		gomega.Expect(o.PaymentStatus).To(gomega.Equal(firstOrder.PaymentStatus))
		gomega.Expect(o.Status).To(gomega.Equal(firstOrder.Status))
		gomega.Expect(*o.PaidAt).To(gomega.BeTemporally("==", *firstOrder.PaidAt))
		gomega.Expect(o.PaymentDetails).To(gomega.Equal(firstOrder.PaymentDetails))

		changes, err := orders.ListStatusChanges(db, "O1")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(changes).To(gomega.HaveLen(1))
	})

	ginkgo.It("should mark a pending order failed without touching its fulfillment status", func() {
		seedOrder("O2", order.PaymentStatusPending, order.StatusPending)
		svc := newService(entries, 0)

		_, err := svc.Reconcile(context.Background(), mpesa.Name, map[string]interface{}{"orderId": "O2", "resultCode": json.Number("1")})

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		o := loadOrder("O2")
		gomega.Expect(o.PaymentStatus).To(gomega.Equal(order.PaymentStatusFailed))
		gomega.Expect(o.Status).To(gomega.Equal(order.StatusPending))
		gomega.Expect(o.PaidAt).To(gomega.BeNil())

		rows := ledgerRows("O2")
		gomega.Expect(rows).To(gomega.HaveLen(1))
		gomega.Expect(rows[0].Status).To(gomega.Equal(ledger.StatusFailed))
		gomega.Expect(rows[0].FailedAt).ToNot(gomega.BeNil())
		gomega.Expect(rows[0].CompletedAt).To(gomega.BeNil())
	})

	ginkgo.It("should record a late failure for audit without touching a paid order", func() {
		// Given
		seedOrder("O3", order.PaymentStatusPending, order.StatusPending)
		svc := newService(entries, 0)
		_, err := svc.Reconcile(context.Background(), mpesa.Name, map[string]interface{}{
			"orderId": "O3", "ResultCode": "0", "CheckoutRequestID": "ws_CO_1", "MpesaReceiptNumber": "R3",
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		paid := loadOrder("O3")

		// When
		_, err = svc.Reconcile(context.Background(), mpesa.Name, map[string]interface{}{"orderId": "O3", "resultCode": json.Number("1")})

		// Then
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		o := loadOrder("O3")
		gomega.Expect(o.PaymentStatus).To(gomega.Equal(order.PaymentStatusPaid))
		gomega.Expect(o.Status).To(gomega.Equal(order.StatusConfirmed))
		gomega.Expect(*o.PaidAt).To(gomega.BeTemporally("==", *paid.PaidAt))
		gomega.Expect(o.PaymentDetails).To(gomega.Equal(paid.PaymentDetails))

		rows := ledgerRows("O3")
		gomega.Expect(rows).To(gomega.HaveLen(2))
		statuses := []string{rows[0].Status, rows[1].Status}
		gomega.Expect(statuses).To(gomega.ConsistOf(ledger.StatusCompleted, ledger.StatusFailed))
		gomega.Expect(rows[0].GatewayCheckoutRequestID).ToNot(gomega.Equal(rows[1].GatewayCheckoutRequestID))
	})

	ginkgo.It("should never move a paid order back, whatever arrives afterwards", func() {
		// Given
		seedOrder("O4", order.PaymentStatusPending, order.StatusPending)
		svc := newService(entries, 0)
		attempt := map[string]interface{}{"orderId": "O4", "CheckoutRequestID": "ws_CO_4", "ResultCode": "0", "MpesaReceiptNumber": "R4"}
		_, err := svc.Reconcile(context.Background(), mpesa.Name, attempt)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		// When
		followUps := []map[string]interface{}{
			{"orderId": "O4", "CheckoutRequestID": "ws_CO_4", "ResultCode": "1032", "ResultDesc": "Request cancelled by user"},
			{"orderId": "O4", "status": "FAILED"},
			{"orderId": "O4", "CheckoutRequestID": "ws_CO_4", "ResultCode": "0", "MpesaReceiptNumber": "R4"},
		}
		for _, p := range followUps {
			_, err := svc.Reconcile(context.Background(), mpesa.Name, p)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			// Then
			gomega.Expect(loadOrder("O4").PaymentStatus).To(gomega.Equal(order.PaymentStatusPaid))
		}

		row, err := entries.FindByAttempt(db, "O4", "ws_CO_4")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(row.Status).To(gomega.Equal(ledger.StatusCompleted))
		gomega.Expect(row.CompletedAt).ToNot(gomega.BeNil())
		gomega.Expect(row.FailedAt).To(gomega.BeNil())
		gomega.Expect(row.GatewayMetadata).To(gomega.HaveKeyWithValue("receiptNumber", "R4"))
		gomega.Expect(row.GatewayMetadata).To(gomega.HaveKeyWithValue("resultDesc", "Request cancelled by user"))
	})

	ginkgo.It("should leave every row untouched when the callback names no order", func() {
		seedOrder("O5", order.PaymentStatusPending, order.StatusPending)
		before := loadOrder("O5")
		svc := newService(entries, 0)

		res, err := svc.Reconcile(context.Background(), mpesa.Name, map[string]interface{}{"ResultCode": "0", "MpesaReceiptNumber": "R5"})

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(res.Status).To(gomega.Equal(reconciliation.ResultUnresolvable))
		status, ack := reconciliation.Acknowledge(res, err)
		gomega.Expect(status).To(gomega.Equal(200))
		gomega.Expect(ack.Accepted).To(gomega.BeTrue())

		gomega.Expect(countRows(&ledgerDatamodel.PaymentTransaction{})).To(gomega.BeZero())
		gomega.Expect(countRows(&orderDatamodel.OrderStatusChange{})).To(gomega.BeZero())
		after := loadOrder("O5")
		gomega.Expect(after.PaymentStatus).To(gomega.Equal(before.PaymentStatus))
		gomega.Expect(after.UpdatedAt).To(gomega.BeTemporally("==", before.UpdatedAt))
	})

	ginkgo.It("should apply nothing when the ledger write fails after the order update", func() {
		// Given
		seedOrder("O6", order.PaymentStatusPending, order.StatusPending)
		svc := newService(failingLedgerStore{RepositoryAPI: entries}, 0)

		// When
		_, err := svc.Reconcile(context.Background(), mpesa.Name, map[string]interface{}{"orderId": "O6", "ResultCode": "0", "MpesaReceiptNumber": "R6"})

		// Then
		appErr, ok := internal.IsAppError(err)
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(appErr.Code).To(gomega.Equal(internal.ErrCodeTransactionalFailure))

		o := loadOrder("O6")
		gomega.Expect(o.PaymentStatus).To(gomega.Equal(order.PaymentStatusPending))
		gomega.Expect(o.Status).To(gomega.Equal(order.StatusPending))
		gomega.Expect(o.PaidAt).To(gomega.BeNil())
		gomega.Expect(o.PaymentDetails).ToNot(gomega.HaveKey("transactionId"))
		gomega.Expect(ledgerRows("O6")).To(gomega.BeEmpty())
		gomega.Expect(countRows(&orderDatamodel.OrderStatusChange{})).To(gomega.BeZero())
		gomega.Expect(publisher.types()).To(gomega.Equal([]string{events.EventTypePaymentCallbackFailed}))

		// the gateway retries once storage recovers
		_, err = newService(entries, 0).Reconcile(context.Background(), mpesa.Name, map[string]interface{}{"orderId": "O6", "ResultCode": "0", "MpesaReceiptNumber": "R6"})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(loadOrder("O6").PaymentStatus).To(gomega.Equal(order.PaymentStatusPaid))
		gomega.Expect(ledgerRows("O6")).To(gomega.HaveLen(1))
	})

	ginkgo.It("should abort with a timeout when the unit of work overruns", func() {
		seedOrder("O7", order.PaymentStatusPending, order.StatusPending)
		svc := newService(stallingLedgerStore{RepositoryAPI: entries}, 50*time.Millisecond)

		_, err := svc.Reconcile(context.Background(), mpesa.Name, map[string]interface{}{"orderId": "O7", "ResultCode": "0", "MpesaReceiptNumber": "R7"})

		gomega.Expect(errors.Is(err, internal.ErrReconcileTimeout)).To(gomega.BeTrue())
		status, ack := reconciliation.Acknowledge(nil, err)
		gomega.Expect(status).To(gomega.Equal(500))
		gomega.Expect(ack.Accepted).To(gomega.BeFalse())

		o := loadOrder("O7")
		gomega.Expect(o.PaymentStatus).To(gomega.Equal(order.PaymentStatusPending))
		gomega.Expect(ledgerRows("O7")).To(gomega.BeEmpty())
	})

	ginkgo.It("should report a missing order as an internal error acknowledged with 200", func() {
		svc := newService(entries, 0)

		_, err := svc.Reconcile(context.Background(), mpesa.Name, scenarioOnePayload())

		gomega.Expect(errors.Is(err, internal.ErrOrderNotFound)).To(gomega.BeTrue())
		status, ack := reconciliation.Acknowledge(nil, err)
		gomega.Expect(status).To(gomega.Equal(200))
		gomega.Expect(ack.Accepted).To(gomega.BeFalse())
		gomega.Expect(ack.ResultCode).To(gomega.Equal("1"))
		gomega.Expect(countRows(&ledgerDatamodel.PaymentTransaction{})).To(gomega.BeZero())
	})

	ginkgo.It("should take amount from the callback and phone from the order when absent", func() {
		seedOrder("O8", order.PaymentStatusPending, order.StatusPending)
		svc := newService(entries, 0)

		_, err := svc.Reconcile(context.Background(), mpesa.Name, map[string]interface{}{
			"orderId": "O8", "ResultCode": "0", "MpesaReceiptNumber": "R8", "amount": "480.25",
		})

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		rows := ledgerRows("O8")
		gomega.Expect(rows).To(gomega.HaveLen(1))
		gomega.Expect(rows[0].Amount.Equal(decimal.RequireFromString("480.25"))).To(gomega.BeTrue())
		gomega.Expect(rows[0].CustomerPhone).To(gomega.Equal("+254712345678"))
		gomega.Expect(rows[0].CustomerName).To(gomega.Equal("Wanjiku"))
	})

	ginkgo.It("should record the actor carried by the request context", func() {
		seedOrder("O9", order.PaymentStatusPending, order.StatusPending)
		svc := newService(entries, 0)
		ctx := internal.ContextWithActorID(context.Background(), "system:callback-replay")

		_, err := svc.Reconcile(ctx, mpesa.Name, map[string]interface{}{"orderId": "O9", "ResultCode": "0", "MpesaReceiptNumber": "R9"})

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		changes, err := orders.ListStatusChanges(db, "O9")
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(changes).To(gomega.HaveLen(1))
		gomega.Expect(changes[0].ActorID).To(gomega.Equal("system:callback-replay"))
	})
})

package reconciliation_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/pos-payments/internal"
	"github.com/frahmantamala/pos-payments/internal/reconciliation"
)

var _ = ginkgo.Describe("Acknowledge", func() {
	ginkgo.DescribeTable("status and body",
		func(result *reconciliation.Result, err error, status int, ack reconciliation.Acknowledgement) {
			gotStatus, gotAck := reconciliation.Acknowledge(result, err)

			gomega.Expect(gotStatus).To(gomega.Equal(status))
			gomega.Expect(gotAck).To(gomega.Equal(ack))
		},
		ginkgo.Entry("reconciled",
			&reconciliation.Result{Status: reconciliation.ResultReconciled}, nil,
			http.StatusOK, reconciliation.Acknowledgement{Accepted: true, ResultCode: "0", ResultDescription: "Accepted"}),
		ginkgo.Entry("nil result",
			nil, nil,
			http.StatusOK, reconciliation.Acknowledgement{Accepted: true, ResultCode: "0", ResultDescription: "Accepted"}),
		ginkgo.Entry("unresolvable",
			&reconciliation.Result{Status: reconciliation.ResultUnresolvable}, nil,
			http.StatusOK, reconciliation.Acknowledgement{Accepted: true, ResultCode: "0", ResultDescription: "Accepted without changes: no order reference"}),
		ginkgo.Entry("wrapped order not found",
			nil, fmt.Errorf("apply: %w", internal.ErrOrderNotFound.WithCause(errors.New("record not found"))),
			http.StatusOK, reconciliation.Acknowledgement{Accepted: false, ResultCode: "1", ResultDescription: "Internal error: order not found"}),
		ginkgo.Entry("unknown gateway",
			nil, internal.ErrUnknownGateway.WithCause(errors.New(`gateway "x"`)),
			http.StatusNotFound, reconciliation.Acknowledgement{Accepted: false, ResultCode: "1", ResultDescription: "Unknown payment gateway"}),
		ginkgo.Entry("invalid payload",
			nil, internal.NewValidationError("callback body must be a JSON object", internal.ErrCodeInvalidPayload),
			http.StatusBadRequest, reconciliation.Acknowledgement{Accepted: false, ResultCode: "1", ResultDescription: "callback body must be a JSON object"}),
		ginkgo.Entry("oversized payload",
			nil, internal.ErrPayloadTooLarge.WithCause(&http.MaxBytesError{Limit: reconciliation.MaxCallbackBytes}),
			http.StatusRequestEntityTooLarge, reconciliation.Acknowledgement{Accepted: false, ResultCode: "1", ResultDescription: "callback body too large"}),
		ginkgo.Entry("timeout",
			nil, internal.ErrReconcileTimeout.WithCause(context.DeadlineExceeded),
			http.StatusInternalServerError, reconciliation.Acknowledgement{Accepted: false, ResultCode: "1", ResultDescription: "Internal error"}),
		ginkgo.Entry("plain error",
			nil, errors.New("boom"),
			http.StatusInternalServerError, reconciliation.Acknowledgement{Accepted: false, ResultCode: "1", ResultDescription: "Internal error"}),
	)
})

package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/google/uuid"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/pos-payments/internal"
	"github.com/frahmantamala/pos-payments/internal/transport/middleware"
)

var _ = ginkgo.Describe("RecoveryMiddleware", func() {
	ginkgo.It("should answer a panic with a 500 acknowledgement", func() {
		sink := &logSink{}
		handler := middleware.RecoveryMiddleware(sink.logger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("ledger exploded")
		}))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback", strings.NewReader(`{}`)))

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusInternalServerError))
		gomega.Expect(rec.Header().Get("Content-Type")).To(gomega.Equal("application/json"))
		var ack map[string]interface{}
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &ack)).To(gomega.Succeed())
		gomega.Expect(ack).To(gomega.Equal(map[string]interface{}{
			"accepted":          false,
			"resultCode":        "1",
			"resultDescription": "Internal error",
		}))
		gomega.Expect(sink.record("panic recovered")).To(gomega.HaveKeyWithValue("error", "ledger exploded"))
	})

	ginkgo.It("should pass through when nothing panics", func() {
		handler := middleware.RecoveryMiddleware((&logSink{}).logger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNoContent))
	})
})

var _ = ginkgo.Describe("TraceID", func() {
	var seen string

	handler := middleware.TraceID(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		seen = w.Header().Get(middleware.TraceHeader)
	}))

	ginkgo.BeforeEach(func() {
		seen = ""
	})

	ginkgo.It("should reuse the caller's trace id", func() {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(middleware.TraceHeader, "trace-123")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		gomega.Expect(rec.Header().Get(middleware.TraceHeader)).To(gomega.Equal("trace-123"))
		gomega.Expect(seen).To(gomega.Equal("trace-123"))
	})

	ginkgo.It("should mint a uuid when the caller sends none", func() {
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		traceID := rec.Header().Get(middleware.TraceHeader)
		_, err := uuid.Parse(traceID)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(seen).To(gomega.Equal(traceID))
	})
})

var _ = ginkgo.Describe("Actor", func() {
	actorFor := func(header string) string {
		var actor string
		handler := middleware.Actor(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			actor = internal.ActorIDFromContext(r.Context())
		}))
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if header != "" {
			req.Header.Set(middleware.ActorHeader, header)
		}
		handler.ServeHTTP(httptest.NewRecorder(), req)
		return actor
	}

	ginkgo.DescribeTable("actor recorded for the request",
		func(header, expected string) {
			gomega.Expect(actorFor(header)).To(gomega.Equal(expected))
		},
		ginkgo.Entry("no header", "", internal.SystemActor),
		ginkgo.Entry("named caller", "system:callback-replay", "system:callback-replay"),
		ginkgo.Entry("surrounding spaces", "  ops:jane  ", "ops:jane"),
		ginkgo.Entry("blank header", "   ", internal.SystemActor),
		ginkgo.Entry("overlong header", strings.Repeat("a", 65), internal.SystemActor),
	)
})

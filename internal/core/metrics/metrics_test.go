package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var _ = Describe("Metrics", func() {
	It("records each counter under its labels", func() {
		m := New()

		m.PermissionCheck("cache", true)
		m.PermissionCheck("store", false)
		m.PermissionCheck("store", false)
		m.CacheInvalidated()
		m.LoginAttempt("locked")
		m.TokenOperation("refresh", errors.New("x"))

		Expect(testutil.ToFloat64(m.permissionChecks.WithLabelValues("cache", "allowed"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(m.permissionChecks.WithLabelValues("store", "denied"))).To(Equal(2.0))
		Expect(testutil.ToFloat64(m.cacheInvalidations)).To(Equal(1.0))
		Expect(testutil.ToFloat64(m.loginAttempts.WithLabelValues("locked"))).To(Equal(1.0))
		Expect(testutil.ToFloat64(m.tokenOperations.WithLabelValues("refresh", "error"))).To(Equal(1.0))
	})

	It("is safe to use when disabled", func() {
		var m *Metrics
		m.PermissionCheck("cache", true)
		m.CacheInvalidated()
		m.LoginAttempt("success")
		m.TokenOperation("issue", nil)

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("labels requests by route pattern", func() {
		m := New()
		r := chi.NewRouter()
		r.Use(m.Middleware)
		r.Get("/roles/{id}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/roles/42", nil))
		Expect(testutil.ToFloat64(m.requestsTotal.WithLabelValues("/roles/{id}", http.MethodGet, "404"))).To(Equal(1.0))

		rec := httptest.NewRecorder()
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		Expect(rec.Body.String()).To(ContainSubstring("rbac_http_requests_total"))
	})
})

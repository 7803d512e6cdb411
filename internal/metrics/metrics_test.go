package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestServerMetricsUsesRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg, "cart")

	router := mux.NewRouter()
	router.Use(m.Middleware)
	router.HandleFunc("/carts/{sessionId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, session := range []string{"a", "b", "c"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/carts/"+session, nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Requests.WithLabelValues("/carts/{sessionId}", http.MethodGet, "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LatencyMS))
}

func TestDomainCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	cart := NewCartMetrics(reg)
	order := NewOrderMetrics(reg)

	cart.Mutations.WithLabelValues("add", "ok").Inc()
	cart.Checkouts.WithLabelValues("EMPTY_CART").Inc()
	order.Created.Inc()
	order.Transitions.WithLabelValues("PENDING", "CONFIRMED").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(cart.Mutations.WithLabelValues("add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cart.Checkouts.WithLabelValues("EMPTY_CART")))
	assert.Equal(t, 1.0, testutil.ToFloat64(order.Created))
	assert.Equal(t, 1.0, testutil.ToFloat64(order.Transitions.WithLabelValues("PENDING", "CONFIRMED")))
}

// Package metrics exposes in-process counters for connections,
// delivered messages, and DNS activity, optionally serving them as
// Prometheus text format over a debug HTTP listener.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailspool_connections_total",
		Help: "Accepted connections per protocol.",
	}, []string{"protocol"})

	MessagesDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailspool_messages_delivered_total",
		Help: "Messages delivered, by outcome.",
	}, []string{"outcome"})

	DNSQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailspool_dns_queries_total",
		Help: "DNS queries issued, by record type and outcome.",
	}, []string{"qtype", "outcome"})

	RelayAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mailspool_relay_attempts_total",
		Help: "Outbound SMTP relay attempts, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(Connections, MessagesDelivered, DNSQueries, RelayAttempts)
}

// Serve starts the optional debug HTTP listener exposing /metrics. It
// runs until the listener fails, which it logs rather than treating
// as fatal: metrics are a convenience, not a required service.
func Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Printf("metrics: listening on %s\n", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics: listener stopped: %s\n", err)
	}
}

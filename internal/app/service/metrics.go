package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	certificateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_transitions_total",
			Help: "Certificate transition attempts by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	requestTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_request_transitions_total",
			Help: "Certificate request triage and fulfilment attempts by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	certificatesOverdue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "certificates_overdue",
		Help: "Approved certificates past their next inspection date at the last renewal run",
	})

	certificatesUpcoming = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "certificates_upcoming",
		Help: "Approved certificates due within the renewal horizon at the last renewal run",
	})

	pdfRendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "certificate_pdf_renders_total",
			Help: "Certificate PDF render attempts by outcome",
		},
		[]string{"outcome"},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TenderTransitions считает переходы статусов тендеров.
	TenderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_tender_transitions_total",
		Help: "Total number of tender status transitions",
	}, []string{"status"})

	// ProposalTransitions считает переходы статусов предложений.
	ProposalTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_proposal_transitions_total",
		Help: "Total number of proposal status transitions",
	}, []string{"status"})

	// TenderViews считает просмотры тендеров.
	TenderViews = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_tender_views_total",
		Help: "Total number of tender detail views",
	})

	// StaleStateConflicts считает проигранные гонки версий.
	StaleStateConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketplace_stale_state_conflicts_total",
		Help: "Total number of optimistic concurrency conflicts",
	}, []string{"entity"})
)

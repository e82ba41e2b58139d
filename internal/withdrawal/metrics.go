package withdrawal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletledger_withdrawals_dispatched_total",
		Help: "Withdrawal ids handed to the worker pool, by scan loop.",
	}, []string{"scan"})

	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "walletledger_withdrawal_executions_total",
		Help: "Settled withdrawal executions, by resulting status.",
	}, []string{"status"})

	executionErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "walletledger_withdrawal_execution_errors_total",
		Help: "Execution attempts that errored before settling.",
	})
)

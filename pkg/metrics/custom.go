package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TransferEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "varlixo",
			Name:      "transfer_events_total",
			Help:      "Total number of candidate transfer events observed by chain scanners.",
		},
		[]string{"chain", "network", "asset"},
	)

	ScanErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "varlixo",
			Name:      "scan_errors_total",
			Help:      "Total number of aborted scan cycles per chain/network.",
		},
		[]string{"chain", "network"},
	)

	DepositsCreditedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "varlixo",
			Name:      "deposits_credited_total",
			Help:      "Total number of deposits settled into user wallets.",
		},
		[]string{"chain", "network", "asset"},
	)

	SettlementFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "varlixo",
			Name:      "settlement_failures_total",
			Help:      "Total number of per-deposit settlement failures.",
		},
		[]string{"chain", "reason"}, // reason: unresolved/valuation/store/oracle
	)

	OracleLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "varlixo",
			Name:      "oracle_lookups_total",
			Help:      "Total number of price oracle lookups.",
		},
		[]string{"symbol", "result"}, // result: hit/miss/error
	)

	CursorHeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "varlixo",
			Name:      "indexer_cursor_height",
			Help:      "Last processed block height per chain/network (0 for signature cursors).",
		},
		[]string{"chain", "network"},
	)
)

func MustRegister() {
	prometheus.MustRegister(
		TransferEventsTotal,
		ScanErrorsTotal,
		DepositsCreditedTotal,
		SettlementFailuresTotal,
		OracleLookupsTotal,
		CursorHeight,
	)
}

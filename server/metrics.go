// SPDX-License-Identifier: GPL-2.0-or-later

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the server side counters. Pass nil to New to run
// without them.
type Metrics struct {
	Connects      prometheus.Counter
	PacketsIn     prometheus.Counter
	PacketsOut    prometheus.Counter
	ChecksumDrops prometheus.Counter
	ActiveClients prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connects: f.NewCounter(prometheus.CounterOpts{
			Name: "qw_server_connects_total",
			Help: "Accepted connect requests.",
		}),
		PacketsIn: f.NewCounter(prometheus.CounterOpts{
			Name: "qw_server_packets_in_total",
			Help: "Datagrams received.",
		}),
		PacketsOut: f.NewCounter(prometheus.CounterOpts{
			Name: "qw_server_packets_out_total",
			Help: "Datagrams sent.",
		}),
		ChecksumDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "qw_server_move_checksum_drops_total",
			Help: "Moves dropped for a bad checksum.",
		}),
		ActiveClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "qw_server_active_clients",
			Help: "Connected clients.",
		}),
	}
}

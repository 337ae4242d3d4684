// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"github.com/prometheus/client_golang/prometheus"
)

type MetricsCollector struct {
	db *DB

	writeTxDesc   *prometheus.Desc
	rollbackDesc  *prometheus.Desc
	openConnsDesc *prometheus.Desc
	waitCountDesc *prometheus.Desc
}

func NewMetricsCollector(db *DB) *MetricsCollector {
	return &MetricsCollector{
		db: db,
		writeTxDesc: prometheus.NewDesc(
			"entitled_db_write_tx_total",
			"Number of write transactions started on the dedicated write connection",
			nil,
			nil,
		),
		rollbackDesc: prometheus.NewDesc(
			"entitled_db_write_tx_rollback_total",
			"Number of write transactions rolled back",
			nil,
			nil,
		),
		openConnsDesc: prometheus.NewDesc(
			"entitled_db_open_connections",
			"Number of established connections in the reader pool",
			nil,
			nil,
		),
		waitCountDesc: prometheus.NewDesc(
			"entitled_db_wait_count_total",
			"Total number of connections waited for in the reader pool",
			nil,
			nil,
		),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.writeTxDesc
	ch <- c.rollbackDesc
	ch <- c.openConnsDesc
	ch <- c.waitCountDesc
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.db == nil {
		return
	}

	started, rolledBack := c.db.WriteTxStats()
	ch <- prometheus.MustNewConstMetric(c.writeTxDesc, prometheus.CounterValue, float64(started))
	ch <- prometheus.MustNewConstMetric(c.rollbackDesc, prometheus.CounterValue, float64(rolledBack))

	stats := c.db.conn.Stats()
	ch <- prometheus.MustNewConstMetric(c.openConnsDesc, prometheus.GaugeValue, float64(stats.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.waitCountDesc, prometheus.CounterValue, float64(stats.WaitCount))
}

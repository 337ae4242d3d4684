// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/entitled/internal/services/entitlement"
)

const collectTimeout = 10 * time.Second

// StatsSource is implemented by the entitlement coordinator.
type StatsSource interface {
	Stats(ctx context.Context) (*entitlement.Stats, error)
}

type EntitlementCollector struct {
	source StatsSource

	licensesTotalDesc      *prometheus.Desc
	activationsActiveDesc  *prometheus.Desc
	devicesBlacklistedDesc *prometheus.Desc
	ledgerHeightDesc       *prometheus.Desc
	ledgerHaltedDesc       *prometheus.Desc
	scrapeErrorDesc        *prometheus.Desc
}

func NewEntitlementCollector(source StatsSource) *EntitlementCollector {
	return &EntitlementCollector{
		source: source,

		licensesTotalDesc: prometheus.NewDesc(
			"entitled_licenses_total",
			"Number of licenses by state",
			[]string{"state"},
			nil,
		),
		activationsActiveDesc: prometheus.NewDesc(
			"entitled_activations_active",
			"Number of active license to device bindings",
			nil,
			nil,
		),
		devicesBlacklistedDesc: prometheus.NewDesc(
			"entitled_devices_blacklisted",
			"Number of blacklisted devices",
			nil,
			nil,
		),
		ledgerHeightDesc: prometheus.NewDesc(
			"entitled_ledger_height",
			"Index of the last committed ledger block",
			nil,
			nil,
		),
		ledgerHaltedDesc: prometheus.NewDesc(
			"entitled_ledger_halted",
			"Whether the ledger refuses new blocks after an integrity failure (1=halted, 0=ok)",
			nil,
			nil,
		),
		scrapeErrorDesc: prometheus.NewDesc(
			"entitled_collector_scrape_error",
			"Whether the last entitlement stats scrape failed (1=error, 0=ok)",
			nil,
			nil,
		),
	}
}

func (c *EntitlementCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.licensesTotalDesc
	ch <- c.activationsActiveDesc
	ch <- c.devicesBlacklistedDesc
	ch <- c.ledgerHeightDesc
	ch <- c.ledgerHaltedDesc
	ch <- c.scrapeErrorDesc
}

func (c *EntitlementCollector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		log.Debug().Msg("entitlement source is nil, skipping metrics collection")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	stats, err := c.source.Stats(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to collect entitlement stats")
		ch <- prometheus.MustNewConstMetric(c.scrapeErrorDesc, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeErrorDesc, prometheus.GaugeValue, 0)

	ch <- prometheus.MustNewConstMetric(c.licensesTotalDesc, prometheus.GaugeValue, float64(stats.Licenses.Active), "active")
	ch <- prometheus.MustNewConstMetric(c.licensesTotalDesc, prometheus.GaugeValue, float64(stats.Licenses.Inactive), "inactive")
	ch <- prometheus.MustNewConstMetric(c.licensesTotalDesc, prometheus.GaugeValue, float64(stats.Licenses.Expired), "expired")

	ch <- prometheus.MustNewConstMetric(c.activationsActiveDesc, prometheus.GaugeValue, float64(stats.ActiveActivations))
	ch <- prometheus.MustNewConstMetric(c.devicesBlacklistedDesc, prometheus.GaugeValue, float64(stats.BlacklistedDevices))
	ch <- prometheus.MustNewConstMetric(c.ledgerHeightDesc, prometheus.GaugeValue, float64(stats.LedgerHeight))

	halted := 0.0
	if stats.LedgerHalted {
		halted = 1
	}
	ch <- prometheus.MustNewConstMetric(c.ledgerHaltedDesc, prometheus.GaugeValue, halted)
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/entitled/internal/database"
	"github.com/autobrr/entitled/internal/models"
)

const outcomeOK = "ok"

type Manager struct {
	registry             *prometheus.Registry
	entitlementCollector *EntitlementCollector
	operations           *prometheus.CounterVec
}

// NewMetricsManager builds an isolated registry. A nil db skips the database
// collector; a nil source leaves the entitlement gauges empty.
func NewMetricsManager(db *database.DB, source StatsSource) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	entitlementCollector := NewEntitlementCollector(source)
	registry.MustRegister(entitlementCollector)

	if db != nil {
		registry.MustRegister(database.NewMetricsCollector(db))
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "entitled_operations_total",
		Help: "Coordinator operations by outcome",
	}, []string{"operation", "outcome"})
	registry.MustRegister(operations)

	log.Debug().Msg("Metrics manager initialized")

	return &Manager{
		registry:             registry,
		entitlementCollector: entitlementCollector,
		operations:           operations,
	}
}

// ObserveOperation counts one coordinator call. The outcome is "ok" or the
// error kind.
func (m *Manager) ObserveOperation(operation string, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = string(models.KindOf(err))
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package metrics provides Prometheus instrumentation shared by the storage managers.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	storeerrors "github.com/suparena/cloudstore/errors"
)

// Outcome label values.
const (
	OutcomeSuccess         = "success"
	OutcomeNotFound        = "not_found"
	OutcomeAlreadyExists   = "already_exists"
	OutcomeConditionFailed = "condition_failed"
	OutcomeInvalid         = "invalid"
	OutcomeCanceled        = "canceled"
	OutcomeError           = "error"
)

// Collector wraps the Prometheus metrics recorded by the managers. A nil *Collector
// records nothing.
type Collector struct {
	registry *prometheus.Registry

	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
}

// NewCollector creates a Collector with its own Prometheus registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cloudstore",
			Name:      "operations_total",
			Help:      "Total number of storage operations",
		}, []string{"manager", "op", "outcome"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cloudstore",
			Name:      "operation_duration_seconds",
			Help:      "Duration of storage operations in seconds",
			Buckets: []float64{
				0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
			},
		}, []string{"manager", "op"}),
	}

	reg.MustRegister(c.Operations)
	reg.MustRegister(c.OperationDuration)
	return c
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Observe records one operation that started at start and finished with err.
func (c *Collector) Observe(manager, op string, start time.Time, err error) {
	if c == nil {
		return
	}
	c.Operations.WithLabelValues(manager, op, Classify(err)).Inc()
	c.OperationDuration.WithLabelValues(manager, op).Observe(time.Since(start).Seconds())
}

// Classify maps an operation error to its outcome label.
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case storeerrors.IsNotFound(err):
		return OutcomeNotFound
	case storeerrors.IsAlreadyExists(err):
		return OutcomeAlreadyExists
	case storeerrors.IsConditionFailed(err):
		return OutcomeConditionFailed
	case storeerrors.IsValidationError(err), storeerrors.IsConfigurationError(err):
		return OutcomeInvalid
	}
	return OutcomeError
}

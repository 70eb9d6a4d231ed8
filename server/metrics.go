/*
Copyright 2026 Opsmith, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sre_agent_webhooks_received_total",
		Help: "Webhook deliveries that passed signature validation, by event type.",
	}, []string{"event"})

	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sre_agent_filter_decisions_total",
		Help: "Event filter verdicts for workflow_run events.",
	}, []string{"outcome"})

	agentSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sre_agent_sessions_total",
		Help: "Agent sessions run on behalf of webhook events, by result.",
	}, []string{"result"})
)

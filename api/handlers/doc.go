// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers implements the gateway's HTTP request handlers: dream
generation, provider administration, provider/service health, and fleet-wide
monitoring. Every handler follows the standard net/http interface and carries
Swagger annotations for API doc generation.

# Core types

  - GenerateHandler       — POST /api/parse-dream, dispatches to ProviderManager.Generate
  - AdminHandler          — GET/PATCH /admin/providers/:name, JWT-gated provider mutation
  - ProviderHealthHandler — /health/detailed, /health/provider/:name, /health/check
  - MonitoringHandler     — /monitoring/dashboard, /realtime, /realtime/ws, /performance, /alerts
  - HealthHandler         — process-level health (/health, /healthz, /ready, /version)
  - Response / ErrorInfo  — the shared JSON envelope and structured error shape
  - ResponseWriter        — wraps http.ResponseWriter to capture the written status code
  - HealthCheck           — pluggable readiness check interface (RegisterCheck)

# Capabilities

  - Uniform response shape via WriteSuccess / WriteError / WriteJSON
  - Request validation: DecodeJSONBody (1 MB limit, strict mode), ValidateContentType
  - types.ErrorKind -> HTTP status mapping (4xx/5xx)
  - Realtime monitoring stream over websocket (MonitoringHandler.HandleRealtimeStream)
  - Extensible readiness checks: RegisterCheck with a custom HealthCheck implementation

Every handler here takes its collaborator as a narrow local interface
(generator, descriptorMutator, snapshotSource, prober, metricsReporter,
alertSource) rather than importing internal/manager or its peers directly,
so this package has no dependency on ProviderManager's own collaborator
graph.
*/
package handlers

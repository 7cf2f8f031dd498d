// Package api provides OpenAPI/Swagger documentation for the gateway's HTTP API.
//
// This package contains the OpenAPI 3.0 specification and related documentation
// for the gateway's HTTP surface.
//
// # API Overview
//
// The gateway exposes a RESTful API for:
//   - Dream artifact generation, routed across provider adapters (/api/parse-dream)
//   - Health and readiness (/health, /health/detailed, /health/provider/:name, /health/check)
//   - Monitoring (/monitoring/dashboard, /monitoring/realtime, /monitoring/performance, /monitoring/alerts)
//   - Administrative provider mutation, JWT-gated (/admin/providers/:name)
//
// # Authentication
//
// The generation and monitoring endpoints require an API key via the
// X-API-Key header:
//
//	X-API-Key: your-api-key
//
// The administrative mutation endpoint instead requires a JWT bearer token;
// the API key is not checked on /admin/ paths.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
//
// # OpenAPI Specification
//
// No specification file is checked in; swag generates one into this
// directory (see below).
//
// # Generating Documentation
//
// To generate Swagger documentation using swag:
//
//	swag init -g cmd/gateway/main.go -o api --parseDependency --parseInternal
package api

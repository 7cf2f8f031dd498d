// =============================================================================
// AI Provider Gateway 主入口
// =============================================================================
// 完整服务入口点：多 Provider 调度、熔断/限流、健康探测、告警、Prometheus 指标
//
// 使用方法:
//
//	gateway serve                       # 启动服务
//	gateway serve --config config.yaml  # 指定配置文件
//	gateway version                     # 显示版本信息
//	gateway health                      # 健康检查
// =============================================================================

// @title AI Provider Gateway API
// @version 1.0.0
// @description Dream generation gateway that dispatches prompts across heterogeneous LLM providers.
// @description
// @description ## Features
// @description - Multi-provider routing with priority/success-rate/latency scoring
// @description - Per-provider circuit breaking and rate limiting
// @description - Response validation, repair, and emergency fallback synthesis
// @description - Passive/active health monitoring and alerting
// @description - Administrative provider mutation, JWT-gated

// @contact.name Dreamscapes Gateway Team

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for the generation and monitoring surface

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT bearer token for the administrative provider-mutation surface

package main

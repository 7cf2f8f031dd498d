// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供网关的全局共享类型定义。

# 概述

types 是网关最底层的公共包，不依赖任何内部包，为 providers、internal、
api 等上层模块提供统一的类型契约。所有跨包共享的结构体、枚举和错误码均
定义于此，以避免循环依赖。

# 核心类型

  - Message            — 发送给 Provider 的单条 system/user 消息
  - Error / ErrorKind   — 结构化错误体系，固定的 Severity / Category / Retryable
  - Severity / Category — 错误分类的两个正交维度
  - TokenUsage          — 一次生成尝试的 token 消耗统计
  - Tokenizer           — token 计数接口，EstimateTokenizer 为无依赖后备实现
  - JSONSchema          — JSON Schema 定义与构建器（NewObjectSchema 等）
  - DreamResponseSchema — 内置 dreamResponse 产物 schema

# 主要能力

  - 错误工具链：NewError 按 ErrorKind 自动填充 Severity/Category/Retryable
  - 错误净化：Error.Sanitized 剥离 Cause 与 Context 后方可上线
  - Token 估算：EstimateTokenizer（中英文字符分别计算）
*/
package types

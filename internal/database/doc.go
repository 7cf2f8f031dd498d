// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，支持健康检查、
统计信息采集与事务重试，并在此之上提供网关的可选快照持久化。

# 概述

本包通过 PoolManager 封装 GORM 与 database/sql 的连接池配置，
统一管理连接生命周期、空闲回收与最大连接数限制。后台健康检查
定时探活，异常时通过 zap 日志输出诊断信息。

SnapshotStore 建立在 PoolManager 之上，周期性地将 Provider 状态
与最近的告警记录写入 SQLite，使网关重启后可以立即恢复仪表盘与
告警历史，而不是从空白状态开始 — 这是重启连续性的便利手段，
不是耐久的请求历史（见 AlertingSystem 的非目标）。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，包含最大空闲连接数、最大打开连接数、
    连接最大生命周期、空闲超时与健康检查间隔。
  - PoolStats：友好格式的连接池统计信息。
  - TransactionFunc：事务回调函数类型。
  - SnapshotStore：周期性快照持久化，覆盖式写入 Provider 状态表
    与告警历史表。
  - ProviderSnapshotRecord / AlertRecord：快照表对应的 GORM 模型。

# 主要能力

  - 连接池调优：通过 MaxIdleConns/MaxOpenConns/ConnMaxLifetime 精细控制。
  - 健康检查：后台定时 PingContext 探活，输出连接数与空闲数。
  - 事务管理：WithTransaction 提供单次事务执行，
    WithTransactionRetry 支持指数退避重试（死锁、序列化失败等场景）。
  - 统计采集：GetStats 返回结构化的连接池运行指标。
  - 快照持久化：RunSnapshotLoop 按配置周期覆盖写入最新状态，
    失败时记录日志并跳过本轮，不中断循环。
*/
package database

// 版权所有 2024 SessionDB Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 提供数据库 Schema 迁移管理能力，支持 PostgreSQL、
MySQL 与 SQLite 三种数据库，基于 golang-migrate 实现。

# 概述

迁移文件来自调用方提供的目录或 fs.FS（NNNNNN_name.up.sql /
NNNNNN_name.down.sql）。NewMigratorFromConfig 通过 sqlbridge 在会话之上
打开连接池，因此迁移过程中发生的断线会由会话层透明重连。

# 核心接口与类型

  - Migrator：迁移器接口，定义 Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close 等完整操作集。
  - DefaultMigrator：Migrator 的默认实现，封装 golang-migrate 实例。
  - Config：迁移配置，包含数据库类型、连接池、迁移来源、迁移表名与锁超时。
  - DatabaseType：数据库类型枚举（postgres/mysql/sqlite）。
  - MigrationStatus / MigrationInfo：迁移状态与摘要信息。
  - CLI：命令行交互层，封装 Migrator 提供格式化输出。
*/
package migration

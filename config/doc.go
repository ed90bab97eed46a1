// Package config 提供 SessionDB 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → SESSIONDB_ 前缀环境变量 的顺序加载，
// 并负责把数据库与会话配置转换为 session.Config 与会话选项。
package config

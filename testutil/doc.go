// Copyright (c) SessionDB Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 SessionDB 测试的共享工具和辅助函数。

# 概述

testutil 包为各包的单元测试提供统一的辅助能力，避免重复实现
相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 可控时钟: FakeClock，配合 session.WithClock 精确控制存活缓存窗口
  - 断言工具: AssertContains / AssertEventuallyTrue

# 子包

  - testutil/mocks: MockDriver / MockConn / MockStmt，driver 契约的内存实现，
    支持 Builder 模式、错误注入与调用顺序记录

# 使用示例

	ctx := testutil.TestContext(t)
	drv := mocks.NewMockDriver().WithColumnBindRequiresExecute(true)
	conn, err := session.New(ctx, drv, session.Config{DSN: "mock://"})
*/
package testutil

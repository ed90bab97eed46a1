package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/sessiondb/driver"
	"github.com/BaSui01/sessiondb/testutil"
	"github.com/BaSui01/sessiondb/testutil/mocks"
)

// =============================================================================
// 🧪 Stmt 测试
// =============================================================================

func TestStmt_SurvivesReconnect(t *testing.T) {
	drv := mocks.NewMockDriver().
		WithRows("SELECT name FROM users WHERE id = :id",
			driver.Row{Columns: []string{"name"}, Values: []any{"alice"}})
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT name FROM users WHERE id = :id")
	require.NoError(t, err)
	defer st.Close()

	var name string
	require.NoError(t, st.BindColumn(ctx, driver.ColumnName("name"), driver.ColumnBinding{Dest: &name}))
	require.NoError(t, st.BindValue(ctx, driver.ParamName(":id"), driver.ValueBinding{Value: 42, Type: driver.ParamInt}))
	require.NoError(t, st.SetFetchMode(ctx, driver.FetchMode{Kind: driver.FetchBound}))

	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Connect(ctx))

	require.NoError(t, st.Execute(ctx))

	rebuilt := drv.LastConn().LastStatement()
	require.NotNil(t, rebuilt)
	assert.True(t, rebuilt.Prepared())
	assert.Equal(t, map[string]any{":id": 42}, rebuilt.LastInput())

	_, ok, err := st.Fetch(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", name, "bound column is still written after reconstruction")
}

func TestStmt_ReplayOrder(t *testing.T) {
	drv := mocks.NewMockDriver()
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT a, b FROM t WHERE x = ? AND y = ?")
	require.NoError(t, err)
	defer st.Close()

	var a, b any
	x := 1
	// 故意打乱调用顺序
	require.NoError(t, st.SetFetchMode(ctx, driver.FetchMode{Kind: driver.FetchBound}))
	require.NoError(t, st.BindValue(ctx, driver.ParamPos(2), driver.ValueBinding{Value: "y"}))
	require.NoError(t, st.BindParam(ctx, driver.ParamPos(1), driver.ParamBinding{Source: driver.Ref(&x)}))
	require.NoError(t, st.BindColumn(ctx, driver.ColumnIndex(2), driver.ColumnBinding{Dest: &b}))
	require.NoError(t, st.SetAttribute(ctx, driver.AttrTimeout, 3))
	require.NoError(t, st.BindColumn(ctx, driver.ColumnIndex(1), driver.ColumnBinding{Dest: &a}))

	require.NoError(t, c.Reconnect(ctx))
	require.NoError(t, st.Execute(ctx))

	rebuilt := drv.LastConn().LastStatement()
	assert.Equal(t, []string{
		"attr:timeout",
		"column:2",
		"column:1",
		"param:1",
		"value:2",
		"fetch_mode",
	}, rebuilt.Ops())
}

func TestStmt_ValueThenRefReplaysOnlyRef(t *testing.T) {
	drv := mocks.NewMockDriver()
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT * FROM t WHERE id = :id")
	require.NoError(t, err)
	defer st.Close()

	id := 7
	require.NoError(t, st.BindValue(ctx, driver.ParamName(":id"), driver.ValueBinding{Value: 1}))
	require.NoError(t, st.BindParam(ctx, driver.ParamName(":id"), driver.ParamBinding{Source: driver.Ref(&id)}))

	require.NoError(t, c.Reconnect(ctx))
	id = 9
	require.NoError(t, st.Execute(ctx))

	rebuilt := drv.LastConn().LastStatement()
	assert.Equal(t, []string{"param::id"}, rebuilt.Ops())
	assert.Empty(t, rebuilt.ValueBindings())
	assert.Equal(t, map[string]any{":id": 9}, rebuilt.LastInput(), "reference is read at execution time")
}

func TestStmt_RefThenValueReplaysOnlyValue(t *testing.T) {
	drv := mocks.NewMockDriver()
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT * FROM t WHERE id = :id")
	require.NoError(t, err)
	defer st.Close()

	id := 7
	require.NoError(t, st.BindParam(ctx, driver.ParamName("id"), driver.ParamBinding{Source: driver.Ref(&id)}))
	require.NoError(t, st.BindValue(ctx, driver.ParamName(":id"), driver.ValueBinding{Value: 1}))

	require.NoError(t, c.Reconnect(ctx))
	require.NoError(t, st.Execute(ctx))

	rebuilt := drv.LastConn().LastStatement()
	assert.Equal(t, []string{"value::id"}, rebuilt.Ops())
	assert.Equal(t, map[string]any{":id": 1}, rebuilt.LastInput())
}

func TestStmt_FailedBindNotRecorded(t *testing.T) {
	drv := mocks.NewMockDriver().WithRejectedParam("bad")
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT :bad")
	require.NoError(t, err)
	defer st.Close()

	err = st.BindValue(ctx, driver.ParamName("bad"), driver.ValueBinding{Value: 1})
	assert.ErrorIs(t, err, driver.ErrInvalidParam)
	assert.Equal(t, "HY000", st.ErrorCode())

	drv.WithRejectedParam("other")
	require.NoError(t, c.Reconnect(ctx))
	require.NoError(t, st.Execute(ctx))
	assert.Empty(t, drv.LastConn().LastStatement().Ops())
}

func TestStmt_DeferredColumnResolvesAfterExecute(t *testing.T) {
	drv := mocks.NewMockDriver().WithRows("SELECT v FROM t",
		driver.Row{Columns: []string{"v"}, Values: []any{int64(5)}})
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT v FROM t")
	require.NoError(t, err)
	defer st.Close()

	var v int64
	require.NoError(t, st.BindColumn(ctx, driver.ColumnIndex(1), driver.ColumnBinding{Dest: &v}))

	drv.WithColumnBindRequiresExecute(true)
	require.NoError(t, c.Reconnect(ctx))

	// 重建时列绑定失败，不算错误
	require.NoError(t, st.SetFetchMode(ctx, driver.FetchMode{Kind: driver.FetchBound}))
	assert.Equal(t, []driver.Column{driver.ColumnIndex(1)}, st.pending.Keys())

	rebuilt := drv.LastConn().LastStatement()
	assert.Empty(t, rebuilt.ColumnBindings())

	require.NoError(t, st.Execute(ctx))
	assert.Zero(t, st.pending.Len())
	assert.Contains(t, rebuilt.ColumnBindings(), driver.ColumnIndex(1))

	_, ok, err := st.Fetch(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), v)
}

func TestStmt_ExplicitBindClearsPending(t *testing.T) {
	drv := mocks.NewMockDriver()
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT v FROM t")
	require.NoError(t, err)
	defer st.Close()

	var v, w any
	require.NoError(t, st.BindColumn(ctx, driver.ColumnIndex(1), driver.ColumnBinding{Dest: &v}))

	drv.WithColumnBindRequiresExecute(true)
	require.NoError(t, c.Reconnect(ctx))
	require.NoError(t, st.SetAttribute(ctx, driver.AttrTimeout, 1))
	require.Equal(t, 1, st.pending.Len())

	drv.WithColumnBindRequiresExecute(false)
	require.NoError(t, st.BindColumn(ctx, driver.ColumnIndex(1), driver.ColumnBinding{Dest: &w}))
	assert.Zero(t, st.pending.Len())

	b, ok := st.columns.Get(driver.ColumnIndex(1))
	require.True(t, ok)
	assert.Same(t, &w, b.Dest.(*any))
}

func TestStmt_CloseForgetsRegistryEntry(t *testing.T) {
	drv := mocks.NewMockDriver()
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	handle := drv.LastConn().LastStatement()
	assert.Equal(t, 1, c.Stats().OpenStatements)

	require.NoError(t, st.Close())
	assert.Equal(t, 0, c.Stats().OpenStatements)
	assert.Equal(t, 1, handle.CloseCount())

	require.NoError(t, c.Disconnect())
	assert.Equal(t, 1, handle.CloseCount(), "disconnect does not touch a released handle")

	require.NoError(t, st.Close(), "close is idempotent")
	err = st.Execute(ctx)
	assert.ErrorIs(t, err, ErrStatementClosed)
}

func TestStmt_CloseAfterDisconnectDoesNotTouchNewGeneration(t *testing.T) {
	drv := mocks.NewMockDriver()
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	other, err := c.Prepare(ctx, "SELECT 2")
	require.NoError(t, err)
	defer other.Close()

	require.NoError(t, c.Reconnect(ctx))
	require.NoError(t, other.Execute(ctx))
	assert.Equal(t, 1, c.Stats().OpenStatements)

	require.NoError(t, st.Close())
	assert.Equal(t, 1, c.Stats().OpenStatements)
}

func TestStmt_DisconnectReleasesHandles(t *testing.T) {
	drv := mocks.NewMockDriver()
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	defer st.Close()

	handle := drv.LastConn().LastStatement()
	require.NoError(t, c.Disconnect())
	assert.True(t, handle.Closed())
	assert.Equal(t, 1, handle.CloseCount())
}

func TestStmt_NotConnectedWithoutAutoReconnect(t *testing.T) {
	drv := mocks.NewMockDriver()
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, c.Disconnect())
	err = st.Execute(ctx)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NotErrorIs(t, err, ErrReconstructFailed)
}

func TestStmt_AutoReconnectOnUse(t *testing.T) {
	drv := mocks.NewMockDriver()
	c, _ := newTestConn(t, drv, Config{AutoReconnect: true})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT 1")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, c.Disconnect())
	require.NoError(t, st.Execute(ctx))
	assert.True(t, c.IsConnected())
	assert.Equal(t, 2, drv.OpenCount())
}

func TestStmt_ReconstructFailure(t *testing.T) {
	drv := mocks.NewMockDriver()
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT * FROM gone")
	require.NoError(t, err)
	defer st.Close()

	missing := errors.New("relation \"gone\" does not exist")
	drv.WithFailingPrepare("SELECT * FROM gone", missing)
	require.NoError(t, c.Reconnect(ctx))

	err = st.Execute(ctx)
	assert.ErrorIs(t, err, ErrReconstructFailed)
	assert.ErrorIs(t, err, missing)
	assert.Equal(t, CodeReconstructFailed, GetErrorCode(err))

	// 语句保持无句柄，修复后下次使用再次重建
	drv.WithFailingPrepare("SELECT * FROM gone", nil)
	require.NoError(t, st.Execute(ctx))
}

func TestStmt_ReplayFailureReleasesHandle(t *testing.T) {
	drv := mocks.NewMockDriver()
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT :p")
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.BindValue(ctx, driver.ParamName("p"), driver.ValueBinding{Value: 1}))

	drv.WithRejectedParam("p")
	require.NoError(t, c.Reconnect(ctx))

	err = st.Execute(ctx)
	assert.ErrorIs(t, err, driver.ErrInvalidParam)
	assert.Equal(t, 0, c.Stats().OpenStatements)
	assert.True(t, drv.LastConn().LastStatement().Closed())
}

func TestStmt_QueryReexecutedOnReconstruction(t *testing.T) {
	drv := mocks.NewMockDriver().WithRows("SELECT id FROM t",
		driver.Row{Columns: []string{"id"}, Values: []any{int64(1)}},
		driver.Row{Columns: []string{"id"}, Values: []any{int64(2)}},
	)
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Query(ctx, "SELECT id FROM t")
	require.NoError(t, err)
	defer st.Close()
	assert.False(t, st.Prepared())

	_, _, err = st.Fetch(ctx)
	require.NoError(t, err)

	require.NoError(t, c.Reconnect(ctx))

	rows, err := st.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "re-run query starts from the first row")
	assert.Equal(t, 2, drv.CountQueries("SELECT id FROM t"))
}

func TestStmt_ExecuteRefreshesSharedLiveness(t *testing.T) {
	drv := mocks.NewMockDriver()
	for _, q := range DefaultProbeQueries() {
		drv.WithFailingQuery(q, errors.New("never probe"))
	}
	c, clock := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "UPDATE t SET a = 1")
	require.NoError(t, err)
	defer st.Close()

	clock.Advance(10 * time.Minute)
	require.NoError(t, st.Execute(ctx))

	alive, err := c.IsAlive(ctx, 3*time.Second)
	require.NoError(t, err)
	assert.True(t, alive)
	assert.Empty(t, drv.QueryCalls(), "execution counts as a liveness observation")
}

func TestStmt_ForwardedReads(t *testing.T) {
	drv := mocks.NewMockDriver().WithRows("SELECT a, b FROM t",
		driver.Row{Columns: []string{"a", "b"}, Values: []any{1, "x"}},
		driver.Row{Columns: []string{"a", "b"}, Values: []any{2, "y"}},
		driver.Row{Columns: []string{"a", "b"}, Values: []any{3, "z"}},
	)
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT a, b FROM t")
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Execute(ctx))

	n, err := st.ColumnCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rc, err := st.RowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rc)

	meta, err := st.ColumnMeta(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "b", meta.Name)

	v, ok, err := st.FetchColumn(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "x", v)

	var m map[string]any
	ok, err = st.FetchInto(ctx, &m)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": 2, "b": "y"}, m)

	more, err := st.NextRowset(ctx)
	require.NoError(t, err)
	assert.False(t, more)

	require.NoError(t, st.CloseCursor(ctx))
	_, ok, err = st.Fetch(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.SetAttribute(ctx, driver.AttrTimeout, 2))
	av, err := st.Attribute(ctx, driver.AttrTimeout)
	require.NoError(t, err)
	assert.Equal(t, 2, av)
}

func TestStmt_DebugDumpParams(t *testing.T) {
	drv := mocks.NewMockDriver()
	c, _ := newTestConn(t, drv, Config{})
	ctx := testutil.TestContext(t)

	st, err := c.Prepare(ctx, "SELECT :a, :b")
	require.NoError(t, err)
	defer st.Close()

	b := "two"
	require.NoError(t, st.BindValue(ctx, driver.ParamName("a"), driver.ValueBinding{Value: 1, Type: driver.ParamInt}))
	require.NoError(t, st.BindParam(ctx, driver.ParamName("b"), driver.ParamBinding{Source: driver.Ref(&b), Type: driver.ParamStr}))

	testutil.AssertContains(t, st.DebugDumpParams(), "Params:  2")

	require.NoError(t, c.Disconnect())
	dump := st.DebugDumpParams()
	testutil.AssertContains(t, dump, "SQL: [13] SELECT :a, :b")
	testutil.AssertContains(t, dump, "Param: :a by=value type=int value=1")
	testutil.AssertContains(t, dump, "Param: :b by=ref type=str")
	assert.Empty(t, st.ErrorCode())
	assert.Equal(t, 1, drv.OpenCount(), "introspection never reconnects")
}

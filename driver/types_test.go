package driver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamName_StripsColon(t *testing.T) {
	assert.Equal(t, ParamName(":id"), ParamName("id"))
	assert.NotEqual(t, ParamName("id"), ParamPos(1))

	name, ok := ParamName(":id").Name()
	require.True(t, ok)
	assert.Equal(t, "id", name)
	assert.Equal(t, ":id", ParamName("id").String())

	pos, ok := ParamPos(2).Pos()
	require.True(t, ok)
	assert.Equal(t, 2, pos)
	assert.Equal(t, "2", ParamPos(2).String())
}

func TestColumn_AsMapKey(t *testing.T) {
	m := map[Column]int{}
	m[ColumnIndex(1)] = 1
	m[ColumnName("name")] = 2
	m[ColumnIndex(1)] = 3

	assert.Len(t, m, 2)
	assert.Equal(t, 3, m[ColumnIndex(1)])

	_, ok := ColumnName("name").Index()
	assert.False(t, ok)
	idx, ok := ColumnIndex(4).Index()
	assert.True(t, ok)
	assert.Equal(t, 4, idx)
}

func TestRow_GetAndMap(t *testing.T) {
	row := Row{Columns: []string{"id", "name"}, Values: []any{int64(7), "bob"}}

	v, ok := row.Get("name")
	require.True(t, ok)
	assert.Equal(t, "bob", v)

	_, ok = row.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, map[string]any{"id": int64(7), "name": "bob"}, row.Map())
	assert.Equal(t, 2, row.Len())
}

func TestRef_ReadsValueAtCallTime(t *testing.T) {
	v := 1
	b := Ref(&v)

	got, err := b.BoundValue()
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	v = 42
	got, err = b.BoundValue()
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	target, ok := b.(Target)
	require.True(t, ok)
	assert.Same(t, &v, target.Target())
}

func TestBinderFunc(t *testing.T) {
	calls := 0
	b := BinderFunc(func() (any, error) {
		calls++
		return calls, nil
	})

	v1, _ := b.BoundValue()
	v2, _ := b.BoundValue()
	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)
}

func TestSessionVar(t *testing.T) {
	name, ok := SessionVar("search_path").SessionVar()
	require.True(t, ok)
	assert.Equal(t, "search_path", name)

	_, ok = AttrTimeout.SessionVar()
	assert.False(t, ok)
	_, ok = Attr("session.").SessionVar()
	assert.False(t, ok)
}

func TestCaseMode_Apply(t *testing.T) {
	assert.Equal(t, "UserID", CaseNatural.Apply("UserID"))
	assert.Equal(t, "userid", CaseLower.Apply("UserID"))
	assert.Equal(t, "USERID", CaseUpper.Apply("UserID"))
}

func TestErrorInfo_String(t *testing.T) {
	assert.True(t, ErrorInfo{}.IsZero())
	assert.Equal(t, "00000", ErrorInfo{}.String())
	assert.Equal(t, "SQLSTATE[42P01] 42P01: missing table",
		ErrorInfo{SQLState: "42P01", Code: "42P01", Message: "missing table"}.String())
}

func TestConnectConfig_OptionKeys(t *testing.T) {
	cfg := ConnectConfig{Options: map[Attr]any{
		SessionVar("b"): 1,
		AttrTimeout:     2,
		AttrCase:        CaseLower,
		SessionVar("a"): 3,
	}}
	assert.Equal(t, []Attr{AttrCase, SessionVar("a"), SessionVar("b"), AttrTimeout}, cfg.OptionKeys())
	assert.Empty(t, ConnectConfig{}.OptionKeys())
}

package sqldriver

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/sessiondb/driver"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		typ      driver.ParamType
		expected any
		wantErr  bool
	}{
		{"auto passthrough", 3, driver.ParamAuto, 3, false},
		{"null", "x", driver.ParamNull, nil, false},
		{"int from string", " 42 ", driver.ParamInt, int64(42), false},
		{"int from bool", true, driver.ParamInt, int64(1), false},
		{"int from uint", uint8(7), driver.ParamInt, int64(7), false},
		{"int rejects text", "abc", driver.ParamInt, nil, true},
		{"str from int", 5, driver.ParamStr, "5", false},
		{"bool from int", 0, driver.ParamBool, false, false},
		{"bool from string", "true", driver.ParamBool, true, false},
		{"float from int", 2, driver.ParamFloat, 2.0, false},
		{"lob from string", "ab", driver.ParamLOB, []byte("ab"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(tt.in, tt.typ)
			if tt.wantErr {
				assert.ErrorIs(t, err, driver.ErrInvalidParam)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestToDuration(t *testing.T) {
	d, err := toDuration(3)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)

	d, err = toDuration("250ms")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	d, err = toDuration("2")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)

	_, err = toDuration([]int{1})
	assert.Error(t, err)
}

func TestAssignValue(t *testing.T) {
	var i int
	require.NoError(t, assignValue(&i, "12"))
	assert.Equal(t, 12, i)

	var s string
	require.NoError(t, assignValue(&s, int64(9)))
	assert.Equal(t, "9", s)

	var f float64
	require.NoError(t, assignValue(&f, int64(2)))
	assert.Equal(t, 2.0, f)

	var a any
	require.NoError(t, assignValue(&a, "x"))
	assert.Equal(t, "x", a)

	require.NoError(t, assignValue(&i, nil))
	assert.Zero(t, i)

	assert.Error(t, assignValue(i, 1))
}

func TestScanInto(t *testing.T) {
	type rec struct {
		ID      int64 `db:"id"`
		Label   string
		Ignored string `db:"-"`
	}
	row := driver.Row{Columns: []string{"id", "LABEL", "Ignored", "extra"}, Values: []any{int64(1), "one", "x", "y"}}

	var r rec
	require.NoError(t, scanInto(&r, row))
	assert.Equal(t, rec{ID: 1, Label: "one"}, r)

	var m map[string]any
	require.NoError(t, scanInto(&m, row))
	assert.Equal(t, "y", m["extra"])

	assert.Error(t, scanInto(r, row))
}

func TestScanInto_NullableFields(t *testing.T) {
	type account struct {
		Name    *string        `db:"name"`
		Nick    sql.NullString `db:"nick"`
		Balance sql.NullInt64  `db:"balance"`
		Note    *string        `db:"note"`
	}
	row := driver.Row{
		Columns: []string{"name", "nick", "balance", "note"},
		Values:  []any{"alice", []byte("al"), nil, nil},
	}

	var a account
	require.NoError(t, scanInto(&a, row))
	require.NotNil(t, a.Name)
	assert.Equal(t, "alice", *a.Name)
	assert.Equal(t, sql.NullString{String: "al", Valid: true}, a.Nick)
	assert.False(t, a.Balance.Valid)
	assert.Nil(t, a.Note)

	// NULL 覆盖上一行留下的值
	note := "stale"
	a.Note = &note
	row.Values = []any{"bob", nil, int64(7), nil}
	require.NoError(t, scanInto(&a, row))
	assert.Equal(t, "bob", *a.Name)
	assert.False(t, a.Nick.Valid)
	assert.Equal(t, sql.NullInt64{Int64: 7, Valid: true}, a.Balance)
	assert.Nil(t, a.Note)
}

func TestAssignValue_NullableTargets(t *testing.T) {
	var ns sql.NullString
	require.NoError(t, assignValue(&ns, "x"))
	assert.Equal(t, sql.NullString{String: "x", Valid: true}, ns)

	require.NoError(t, assignValue(&ns, nil))
	assert.False(t, ns.Valid)

	var p *int64
	require.NoError(t, assignValue(&p, "15"))
	require.NotNil(t, p)
	assert.Equal(t, int64(15), *p)

	var tm sql.NullTime
	now := time.Now().UTC()
	require.NoError(t, assignValue(&tm, now))
	assert.True(t, tm.Valid)
	assert.True(t, now.Equal(tm.Time))
}

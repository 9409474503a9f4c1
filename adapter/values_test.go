package adapter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	for _, tc := range []struct {
		a, b any
		want int
	}{
		{int64(1), 2, -1},
		{uint8(9), int64(9), 0},
		{2.5, int64(2), 1},
		{"a", "b", -1},
		{[]byte("b"), "a", 1},
		{nil, int64(0), -1},
		{nil, nil, 0},
		{false, true, -1},
		{uint64(math.MaxUint64), int64(-1), 1},
		{int64(1), uint64(1 << 63), -1},
		{uint64(7), uint(7), 0},
	} {
		got, err := Compare(tc.a, tc.b)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%v vs %v", tc.a, tc.b)
	}
	_, err := Compare("a", int64(1))
	assert.Error(t, err)
}

func TestInt64Range(t *testing.T) {
	n, ok := Int64(uint64(math.MaxInt64))
	assert.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), n)
	_, ok = Int64(uint64(math.MaxInt64) + 1)
	assert.False(t, ok)
	_, ok = Int64(1.5)
	assert.False(t, ok)

	rows := []Fields{{"n": uint64(math.MaxUint64)}, {"n": int64(-3)}, {"n": uint64(2)}}
	out, err := Arrange(rows, FindOptions{OrderBy: []string{"n"}})
	require.NoError(t, err)
	assert.Equal(t, int64(-3), out[0]["n"])
	assert.Equal(t, uint64(2), out[1]["n"])
	assert.Equal(t, uint64(math.MaxUint64), out[2]["n"])
}

func TestMatch(t *testing.T) {
	row := Fields{"_index": int64(5), "_hash": "h"}
	ok, err := Match(row, Filter{"_index": Ge(5), "_hash": "h"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match(row, Filter{"_index": Gt(5)})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Match(row, Filter{"missing": 1})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Match(row, Filter{"_index": Cond{Op: "<>", Value: 1}})
	assert.Error(t, err)
}

func TestArrange(t *testing.T) {
	rows := []Fields{
		{"p": int64(2), "i": int64(1)},
		{"p": int64(1), "i": int64(2)},
		{"p": int64(1), "i": int64(3)},
	}
	out, err := Arrange(rows, FindOptions{OrderBy: []string{"p", "i"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 1}, column(out, "i"))

	out, err = Arrange(rows, FindOptions{OrderBy: []string{"i"}, Descending: true, Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, column(out, "i"))

	out, err = Arrange(rows, FindOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func column(rows []Fields, name string) []int64 {
	var out []int64
	for _, r := range rows {
		n, _ := Int64(r[name])
		out = append(out, n)
	}
	return out
}

func TestSameColumns(t *testing.T) {
	assert.ErrorIs(t, SameColumns(nil), ErrEmptyBatch)
	assert.NoError(t, SameColumns([]Fields{{"a": 1}, {"a": 2}}))
	assert.Error(t, SameColumns([]Fields{{"a": 1}, {"b": 2}}))
	assert.Error(t, SameColumns([]Fields{{"a": 1}, {"a": 2, "b": 3}}))
}

func TestValidName(t *testing.T) {
	assert.NoError(t, ValidName("skua_queue"))
	assert.Error(t, ValidName(""))
	assert.Error(t, ValidName("a\x00b"))
	assert.Error(t, ValidName(`a"b`))
	assert.Error(t, ValidName(string(make([]byte, 129))))
}

func TestCondOf(t *testing.T) {
	c, err := CondOf(int64(3))
	require.NoError(t, err)
	assert.Equal(t, Eq(int64(3)), c)
	c, err = CondOf(Cond{Value: 1})
	require.NoError(t, err)
	assert.Equal(t, OpEq, c.Op)
}

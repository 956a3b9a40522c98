package oracle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Oracle_Set_Get_Delete_RoundTrip(t *testing.T) {
	t.Parallel()

	o := New()

	_, ok := o.Get([]byte("missing"))
	require.False(t, ok)

	o.Set([]byte("k"), []byte("v1"))
	v, ok := o.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	o.Set([]byte("k"), []byte("v2"))
	v, _ = o.Get([]byte("k"))
	require.Equal(t, []byte("v2"), v)
	require.Equal(t, 1, o.Len())

	require.True(t, o.Delete([]byte("k")))
	require.False(t, o.Delete([]byte("k")))
	require.Equal(t, 0, o.Len())
}

func Test_Oracle_Get_Returns_Copies(t *testing.T) {
	t.Parallel()

	o := New()

	val := []byte("abc")
	o.Set([]byte("k"), val)
	val[0] = 'X'

	got, ok := o.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("abc"), got, "Set must copy its input")

	got[1] = 'Y'
	again, _ := o.Get([]byte("k"))
	require.Equal(t, []byte("abc"), again, "Get must return a copy")
}

func Test_Oracle_Keys_Sorted(t *testing.T) {
	t.Parallel()

	o := New()
	o.Set([]byte("b"), []byte("2"))
	o.Set([]byte("a"), []byte("1"))
	o.Set([]byte("c"), []byte("3"))

	keys := o.Keys()
	require.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, keys)
}

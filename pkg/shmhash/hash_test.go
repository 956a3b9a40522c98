package shmhash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_HashKey_MatchesDjb2Reference(t *testing.T) {
	t.Parallel()

	// hash = 5381; for each byte: hash = hash*33 + b, in uint64.
	require.EqualValues(t, 5381, hashKey(nil))
	require.EqualValues(t, 5381, hashKey([]byte{}))
	require.EqualValues(t, 5381*33+'a', hashKey([]byte("a")))
	require.EqualValues(t, (5381*33+'a')*33+'b', hashKey([]byte("ab")))
}

func Test_HashKey_IsSensitiveToEveryByte(t *testing.T) {
	t.Parallel()

	require.NotEqual(t, hashKey([]byte("ab")), hashKey([]byte("ba")))
	require.NotEqual(t, hashKey([]byte("a")), hashKey([]byte("a\x00")))
}

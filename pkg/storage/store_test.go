package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// testStore runs the common Store contract against any backend; MemoryStore
// is the only one exercised directly since bolt/leveldb open real files and
// are thin wrappers over the same interface (mirrors neo-go's store_test.go
// shared testStoreGetAndPut helper run across its backends).
func testStore(t *testing.T, newStore func() Store) {
	t.Run("GetMissingKey", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		_, err := s.Get([]byte("absent"))
		require.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("PutThenGet", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		require.NoError(t, s.Put([]byte("k"), []byte("v1")))
		got, err := s.Get([]byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("v1"), got)

		require.NoError(t, s.Put([]byte("k"), []byte("v2")))
		got, err = s.Get([]byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("v2"), got)
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		require.NoError(t, s.Put([]byte("k"), []byte("v")))
		require.NoError(t, s.Delete([]byte("k")))
		_, err := s.Get([]byte("k"))
		require.ErrorIs(t, err, ErrKeyNotFound)

		// Deleting an absent key is not an error.
		require.NoError(t, s.Delete([]byte("never-existed")))
	})

	t.Run("SeekOrdersByKeyAndRespectsPrefix", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		require.NoError(t, s.Put([]byte("a/2"), []byte("2")))
		require.NoError(t, s.Put([]byte("a/1"), []byte("1")))
		require.NoError(t, s.Put([]byte("b/1"), []byte("b")))

		var seen []string
		err := s.Seek([]byte("a/"), func(k, v []byte) bool {
			seen = append(seen, string(k))
			return true
		})
		require.NoError(t, err)
		require.Equal(t, []string{"a/1", "a/2"}, seen)
	})

	t.Run("SeekStopsWhenCallbackReturnsFalse", func(t *testing.T) {
		s := newStore()
		defer s.Close()
		require.NoError(t, s.Put([]byte("a/1"), []byte("1")))
		require.NoError(t, s.Put([]byte("a/2"), []byte("2")))

		var calls int
		err := s.Seek([]byte("a/"), func(k, v []byte) bool {
			calls++
			return false
		})
		require.NoError(t, err)
		require.Equal(t, 1, calls)
	})
}

func TestMemoryStore(t *testing.T) {
	testStore(t, func() Store { return NewMemoryStore() })
}

func TestKeyPrefixesSuffix(t *testing.T) {
	k := Key(PrefixContract, []byte{0, 0, 0, 1})
	require.Equal(t, byte(PrefixContract), k[0])
	require.Equal(t, []byte{0, 0, 0, 1}, k[1:])
}

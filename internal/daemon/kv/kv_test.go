package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	b, err := OpenBadger(filepath.Join(dir, "badger"), false)
	require.NoError(t, err)
	s, err := OpenSQLite(filepath.Join(dir, "kv.db"), false)
	require.NoError(t, err)

	stores := map[string]Store{
		DriverMemory: NewMemory(),
		DriverBadger: b,
		DriverSQLite: s,
	}
	t.Cleanup(func() {
		for _, st := range stores {
			st.Close()
		}
	})
	return stores
}

func TestStoreBasics(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := st.Get("missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, st.Set("settings", []byte(`{"a":1}`)))
			v, err := st.Get("settings")
			require.NoError(t, err)
			assert.Equal(t, `{"a":1}`, string(v))

			require.NoError(t, st.Set("backup_2", []byte("x")))
			require.NoError(t, st.Set("backup_1", []byte("y")))
			require.NoError(t, st.Set("backup%", []byte("z")))
			keys, err := st.Keys("backup_")
			require.NoError(t, err)
			assert.Equal(t, []string{"backup_1", "backup_2"}, keys)

			require.NoError(t, st.Delete("settings"))
			_, err = st.Get("settings")
			assert.ErrorIs(t, err, ErrNotFound)
			require.NoError(t, st.Delete("settings"))
		})
	}
}

func TestStoreUpdate(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			err := st.Update("counter", func(cur []byte, exists bool) ([]byte, error) {
				assert.False(t, exists)
				return []byte("1"), nil
			})
			require.NoError(t, err)

			err = st.Update("counter", func(cur []byte, exists bool) ([]byte, error) {
				assert.True(t, exists)
				assert.Equal(t, "1", string(cur))
				return nil, ErrNoChange
			})
			require.NoError(t, err)

			boom := errors.New("boom")
			err = st.Update("counter", func([]byte, bool) ([]byte, error) { return nil, boom })
			assert.ErrorIs(t, err, boom)

			v, err := st.Get("counter")
			require.NoError(t, err)
			assert.Equal(t, "1", string(v))
		})
	}
}

func TestConcurrentAppendsAreNotLost(t *testing.T) {
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			const writers = 20
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := st.Update("history", func(cur []byte, exists bool) ([]byte, error) {
						var list []string
						if exists {
							if err := json.Unmarshal(cur, &list); err != nil {
								return nil, err
							}
						}
						list = append(list, fmt.Sprintf("tab-%d", i))
						return json.Marshal(list)
					})
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			raw, err := st.Get("history")
			require.NoError(t, err)
			var list []string
			require.NoError(t, json.Unmarshal(raw, &list))
			assert.Len(t, list, writers)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Options{Driver: "etcd"})
	assert.Error(t, err)

	st, err := Open(Options{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, st)
}

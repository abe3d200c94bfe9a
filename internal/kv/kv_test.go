package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newGormStore(t *testing.T) *Gorm {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "kv.db")), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&Entry{}))
	return NewGorm(gdb)
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemory(),
		"gorm":   newGormStore(t),
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			v, ok, err := s.Get(context.Background(), "loveroom_data_nope")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, v)
		})
	}
}

func TestStore_SetOverwritesWholeValue(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "loveroom_data_a", []byte(`{"messages":[1,2,3]}`)))
			require.NoError(t, s.Set(ctx, "loveroom_data_a", []byte(`{"messages":[]}`)))

			v, ok, err := s.Get(ctx, "loveroom_data_a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, `{"messages":[]}`, string(v))
		})
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "k", []byte(`"v"`)))
			require.NoError(t, s.Delete(ctx, "k"))
			_, ok, err := s.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)

			// deleting again is not an error
			assert.NoError(t, s.Delete(ctx, "k"))
		})
	}
}

func TestStore_NonASCIIValue(t *testing.T) {
	ctx := context.Background()
	val := []byte(`{"name":"测试","content":"❤️ 你好"}`)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set(ctx, "k", val))
			v, ok, err := s.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.JSONEq(t, string(val), string(v))
		})
	}
}

func TestStore_KeysByPrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"loveroom_session_b", "loveroom_session_a", "loveroom_data_x", "loveroomXsessionXc"} {
				require.NoError(t, s.Set(ctx, k, []byte(`{}`)))
			}
			keys, err := s.Keys(ctx, "loveroom_session_")
			require.NoError(t, err)
			assert.Equal(t, []string{"loveroom_session_a", "loveroom_session_b"}, keys)

			keys, err = s.Keys(ctx, "nothing_")
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	in := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", in))
	in[0] = 'x'

	v, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(v))
	v[1] = 'y'
	v2, _, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(v2))
	assert.Equal(t, 1, m.Len())
}

package xresource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ReplaceIsAtomic(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Replace([]RateLimitConfig{{ID: 1, Type: TypeGlobal, QPS: 10}}))
	v := s.Version()

	err := s.Replace([]RateLimitConfig{
		{ID: 2, Type: TypeService, Service: "s"},
		{ID: 3, Type: TypeAPI, Service: "s"},
	})
	require.ErrorIs(t, err, ErrMissingDimension)
	assert.Equal(t, v, s.Version(), "failed replace must not publish")
	assert.True(t, s.Has(GlobalID))
	assert.False(t, s.Has("^^^s^"))
}

func TestStore_ReplaceSkipsDeleted(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Replace([]RateLimitConfig{
		{ID: 1, Type: TypeService, Service: "a"},
		{ID: 2, Type: TypeService, Service: "b", Deleted: true},
	}))
	assert.Equal(t, 1, s.Len())
}

func TestStore_UpsertDeleteGet(t *testing.T) {
	s := NewStore()
	off := false

	require.NoError(t, s.Upsert(RateLimitConfig{ID: 1, Type: TypeService, Service: "s", QPS: 5}))
	got, ok := s.Get("^^^s^")
	require.True(t, ok)
	assert.EqualValues(t, 5, got.QPS)

	require.NoError(t, s.Upsert(RateLimitConfig{ID: 1, Type: TypeService, Service: "s", QPS: 5, Enabled: &off}))
	_, ok = s.Get("^^^s^")
	assert.False(t, ok, "disabled config is invisible to Get")
	assert.Len(t, s.All(), 1, "disabled config is still stored")

	require.NoError(t, s.Upsert(RateLimitConfig{ID: 1, Type: TypeService, Service: "s", Deleted: true}))
	assert.Zero(t, s.Len())

	assert.Error(t, s.Upsert(RateLimitConfig{Type: TypeAPI}))
	assert.False(t, s.Delete("^^^s^"))
}

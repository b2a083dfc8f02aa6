package store

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNullToPtr(t *testing.T) {
	assert.Nil(t, nullToPtr(sql.NullFloat64{}))

	got := nullToPtr(sql.NullFloat64{Float64: 12.5, Valid: true})
	if assert.NotNil(t, got) {
		assert.Equal(t, 12.5, *got)
	}
}

func TestPtrToNull(t *testing.T) {
	assert.False(t, ptrToNull(nil).Valid)

	v := 3.7
	got := ptrToNull(&v)
	assert.True(t, got.Valid)
	assert.Equal(t, 3.7, got.Float64)
}

func TestNewPostgres_RequiresDSN(t *testing.T) {
	_, err := NewPostgres("", 5, 0)
	assert.Error(t, err)
}

package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderedPair(t *testing.T) {
	a, b := orderedPair(9, 4)
	assert.Equal(t, 4, a)
	assert.Equal(t, 9, b)

	a, b = orderedPair(4, 9)
	assert.Equal(t, 4, a)
	assert.Equal(t, 9, b)
}

func TestCreateOrGetChatRejectsSelf(t *testing.T) {
	repo := NewChatRepo(nil)

	_, created, err := repo.CreateOrGetChat(context.Background(), 3, 3)
	require.ErrorIs(t, err, ErrSameUser)
	assert.False(t, created)
}

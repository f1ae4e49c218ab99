package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "amparo/pkg/domain"
	dErrors "amparo/pkg/domain-errors"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewService("test-signing-key", "amparo", "amparo-review")
	reviewerID := id.NewReviewerID()

	token, err := svc.GenerateToken(reviewerID, "maria", time.Minute)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, reviewerID.String(), claims.ReviewerID)
	assert.Equal(t, "maria", claims.Name)
}

func TestValidateToken_Rejections(t *testing.T) {
	svc := NewService("test-signing-key", "amparo", "amparo-review")

	t.Run("expired token", func(t *testing.T) {
		token, err := svc.GenerateToken(id.NewReviewerID(), "joao", -time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other := NewService("another-key", "amparo", "amparo-review")
		token, err := other.GenerateToken(id.NewReviewerID(), "joao", time.Minute)
		require.NoError(t, err)

		_, err = svc.ValidateToken(token)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-token")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

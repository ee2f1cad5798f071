package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	svc := NewTokenService("secret", time.Hour)

	token, exp, err := svc.Issue("user-1")
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	id, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
}

func TestValidateRejectsForeignAndExpired(t *testing.T) {
	issuer := NewTokenService("other", time.Hour)
	foreign, _, err := issuer.Issue("user-1")
	require.NoError(t, err)

	svc := NewTokenService("secret", time.Hour)
	_, err = svc.Validate(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokenService("secret", -time.Minute)
	old, _, err := expired.Issue("user-1")
	require.NoError(t, err)
	_, err = svc.Validate(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Validate("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerTokenAndContext(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Equal(t, "abc", BearerToken("abc"))

	ctx := WithUserID(context.Background(), "u")
	assert.Equal(t, "u", UserIDFrom(ctx))
	assert.Equal(t, "", UserIDFrom(context.Background()))
}

package devserver

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	token, err := issuer.Issue(7)
	require.NoError(t, err)

	userID, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), userID)
}

func TestTokenWrongSecretRejected(t *testing.T) {
	token, err := NewTokenIssuer("secret", time.Hour).Issue(7)
	require.NoError(t, err)

	_, err = NewTokenIssuer("other", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestTokenExpiredRejected(t *testing.T) {
	issuer := NewTokenIssuer("secret", -time.Minute)
	token, err := issuer.Issue(7)
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	assert.Error(t, err)
}

func TestBearerTokenExtraction(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/ws", nil)
	assert.Empty(t, bearerToken(r))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", bearerToken(r))

	// Websocket clients that cannot set headers fall back to the query.
	r = httptest.NewRequest("GET", "/api/ws?token=xyz", nil)
	assert.Equal(t, "xyz", bearerToken(r))
}

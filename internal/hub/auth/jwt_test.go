package auth

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	manager, err := NewJWTManager(strings.Repeat("cd", 32), "contract-hub")
	require.NoError(t, err)
	return manager
}

func TestNewJWTManagerRejectsBadSeeds(t *testing.T) {
	_, err := NewJWTManager("not hex", "contract-hub")
	assert.Error(t, err)

	_, err = NewJWTManager("abcd", "contract-hub")
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	manager := newTestManager(t)

	response, err := manager.GenerateTokenResponse(context.Background(), "alice")
	require.NoError(t, err)

	claims, err := manager.ValidateToken(context.Background(), response.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "contract-hub", claims.Issuer)
}

func TestAnonymousPrincipalGetsNoToken(t *testing.T) {
	manager := newTestManager(t)

	_, err := manager.GenerateTokenResponse(context.Background(), "")
	assert.Error(t, err)
}

func TestExpiredTokenIsRejected(t *testing.T) {
	manager := newTestManager(t)
	manager.tokenDuration = -time.Minute

	response, err := manager.GenerateTokenResponse(context.Background(), "alice")
	require.NoError(t, err)

	_, err = manager.ValidateToken(context.Background(), response.Token)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	manager := newTestManager(t)

	response, err := manager.GenerateTokenResponse(context.Background(), "alice")
	require.NoError(t, err)

	headers := func(token string) func(string) string {
		return func(name string) string {
			if name == "Authorization" {
				return token
			}
			return ""
		}
	}

	session, err := manager.Authenticate(context.Background(), headers("Bearer "+response.Token), url.Values{})
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "alice", string(session.Caller()))

	// No credential means anonymous, not an error.
	session, err = manager.Authenticate(context.Background(), headers(""), url.Values{})
	require.NoError(t, err)
	assert.Nil(t, session)

	// A garbage credential is an error.
	_, err = manager.Authenticate(context.Background(), headers("Bearer garbage"), url.Values{})
	assert.Error(t, err)
}

func TestCallerFrom(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", string(CallerFrom(ctx)))

	ctx = WithSystemContext(ctx)
	assert.Equal(t, "system", string(CallerFrom(ctx)))
	session, ok := SessionFrom(ctx)
	require.True(t, ok)
	assert.True(t, IsSystemSession(session))
}

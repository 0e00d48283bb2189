// Package auth authenticates API callers. A caller presents an EdDSA JWT
// whose subject is its principal; administrative authorization is decided
// against the hub's access-rights list, not against token claims.
package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"

	"github.com/contracthub-dev/contracthub/internal/hub/types"
)

// ErrUnauthenticated is returned when a credential is required but missing.
var ErrUnauthenticated = errors.New("unauthenticated")

// Session is an authenticated caller.
type Session interface {
	Caller() types.Principal
}

// AuthnProvider turns request credentials into a session. A nil session with
// a nil error means the request is anonymous.
type AuthnProvider interface {
	Authenticate(ctx context.Context, reqHeaders func(name string) string, query url.Values) (Session, error)
}

type sessionKeyType struct{}

var sessionKey = sessionKeyType{}

func SessionFrom(ctx context.Context) (Session, bool) {
	v, ok := ctx.Value(sessionKey).(Session)
	return v, ok && v != nil
}

func SessionTo(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// CallerFrom returns the caller principal, or the anonymous principal when
// the request carried no credential.
func CallerFrom(ctx context.Context) types.Principal {
	session, ok := SessionFrom(ctx)
	if !ok {
		return ""
	}
	return session.Caller()
}

func AuthnMiddleware(authn AuthnProvider) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if authn == nil {
			next(ctx)
			return
		}
		url := ctx.URL()
		session, err := authn.Authenticate(ctx.Context(), ctx.Header, url.Query())
		if err != nil {
			ctx.SetStatus(http.StatusUnauthorized)
			_, _ = ctx.BodyWriter().Write([]byte("Unauthorized"))
			return
		}
		if session != nil {
			ctx = huma.WithContext(ctx, SessionTo(ctx.Context(), session))
		}
		next(ctx)
	}
}

package auth

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	apperrors "github.com/mcdev12/studysprint/go/internal/platform/errors"
)

// NewServerInterceptor rejects unary calls without a valid bearer token and
// puts the caller's user id in the handler context.
func NewServerInterceptor(v *Verifier) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				return next(ctx, req)
			}
			token, ok := BearerToken(req.Header().Get("Authorization"))
			if !ok {
				return nil, apperrors.ToConnectError(
					apperrors.New(apperrors.CodeUnauthenticated, "missing bearer token"))
			}
			userID, err := v.Verify(token)
			if err != nil {
				return nil, apperrors.ToConnectError(err)
			}
			return next(WithUserID(ctx, userID), req)
		}
	}
}

// NewClientInterceptor attaches the token returned by token to every call.
func NewClientInterceptor(token func() string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient {
				if t := token(); t != "" {
					req.Header().Set("Authorization", "Bearer "+t)
				}
			}
			return next(ctx, req)
		}
	}
}

// UserFromRequest authenticates a plain HTTP request by its Authorization
// header or, for websocket handshakes, its token query parameter.
func (v *Verifier) UserFromRequest(r *http.Request) (string, error) {
	token, ok := BearerToken(r.Header.Get("Authorization"))
	if !ok {
		token = r.URL.Query().Get("token")
	}
	return v.Verify(token)
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/teamsync/internal/auth"
)

// TokenValidator checks a bearer token. *auth.JWTManager satisfies it.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// AuthInterceptor validates "Authorization: Bearer" tokens on unary and
// server-streaming calls and stores the principal in the context.
// Procedures listed as public pass through, with a principal only when a
// valid token was sent anyway.
type AuthInterceptor struct {
	tokens TokenValidator
	public map[string]bool
}

var _ connect.Interceptor = (*AuthInterceptor)(nil)

// NewAuthInterceptor creates an AuthInterceptor.
func NewAuthInterceptor(tokens TokenValidator, publicProcedures ...string) *AuthInterceptor {
	public := make(map[string]bool, len(publicProcedures))
	for _, p := range publicProcedures {
		public[p] = true
	}
	return &AuthInterceptor{tokens: tokens, public: public}
}

// PrincipalFrom returns the authenticated principal, or the zero Principal
// before authentication.
func PrincipalFrom(ctx context.Context) auth.Principal {
	return auth.PrincipalFrom(ctx)
}

func (i *AuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		ctx, err := i.authenticate(ctx, req.Spec().Procedure, req.Header())
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// WrapStreamingClient leaves outgoing streams untouched.
func (i *AuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *AuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := i.authenticate(ctx, conn.Spec().Procedure, conn.RequestHeader())
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *AuthInterceptor) authenticate(ctx context.Context, procedure string, header http.Header) (context.Context, error) {
	token, err := BearerToken(header.Get("Authorization"))
	if i.public[procedure] {
		if err == nil {
			if claims, verr := i.tokens.Validate(token); verr == nil {
				ctx = withPrincipal(ctx, claims.Principal())
			}
		}
		return ctx, nil
	}
	if err != nil {
		return ctx, connect.NewError(connect.CodeUnauthenticated, err)
	}
	claims, err := i.tokens.Validate(token)
	if err != nil {
		return ctx, connect.NewError(connect.CodeUnauthenticated, auth.ErrInvalidToken)
	}
	return withPrincipal(ctx, claims.Principal()), nil
}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	setCallPrincipal(ctx, p)
	return auth.WithPrincipal(ctx, p)
}

// BearerToken extracts the token of an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", auth.ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", auth.ErrInvalidToken
	}
	return strings.TrimSpace(token), nil
}

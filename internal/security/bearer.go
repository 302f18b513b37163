package security

import (
	"context"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
	"github.com/vyrodovalexey/apidispatch/internal/observability"
	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// bearerPrefix is the expected Authorization scheme prefix.
const bearerPrefix = "bearer "

// BearerScheme authenticates requests carrying a JWT bearer token. Tokens
// are verified either against a shared HMAC secret or a JWK set.
type BearerScheme struct {
	name     string
	secret   []byte
	keySet   jwk.Set
	issuer   string
	audience string
	logger   observability.Logger
}

// BearerOption is a functional option for the bearer scheme.
type BearerOption func(*BearerScheme)

// WithBearerSecret verifies tokens with an HS256 shared secret.
func WithBearerSecret(secret []byte) BearerOption {
	return func(s *BearerScheme) {
		s.secret = secret
	}
}

// WithBearerKeySet verifies tokens against a JWK set.
func WithBearerKeySet(set jwk.Set) BearerOption {
	return func(s *BearerScheme) {
		s.keySet = set
	}
}

// WithBearerIssuer requires the token issuer to match.
func WithBearerIssuer(issuer string) BearerOption {
	return func(s *BearerScheme) {
		s.issuer = issuer
	}
}

// WithBearerAudience requires the token audience to contain the value.
func WithBearerAudience(audience string) BearerOption {
	return func(s *BearerScheme) {
		s.audience = audience
	}
}

// WithBearerLogger sets the logger.
func WithBearerLogger(logger observability.Logger) BearerOption {
	return func(s *BearerScheme) {
		s.logger = logger
	}
}

// NewBearerScheme creates a bearer token scheme. Exactly one of a shared
// secret or a key set must be configured.
func NewBearerScheme(name string, opts ...BearerOption) (*BearerScheme, error) {
	if name == "" {
		return nil, util.NewConfigError("security.bearer", "scheme name is required")
	}

	s := &BearerScheme{
		name:   name,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if (s.secret == nil) == (s.keySet == nil) {
		return nil, util.NewConfigError("security.bearer", "exactly one of secret or key set must be configured")
	}

	return s, nil
}

// Name implements Scheme.
func (s *BearerScheme) Name() string {
	return s.name
}

// Authenticate implements Scheme.
func (s *BearerScheme) Authenticate(ctx context.Context, rc *dispatch.RequestContext) (*dispatch.SchemeResult, error) {
	raw := extractBearerToken(rc.Req.Header.Get("Authorization"))
	if raw == "" {
		return nil, ErrNoCredentials
	}

	opts := []jwt.ParseOption{
		jwt.WithContext(ctx),
		jwt.WithValidate(true),
	}
	if s.keySet != nil {
		opts = append(opts, jwt.WithKeySet(s.keySet))
	} else {
		opts = append(opts, jwt.WithKey(jwa.HS256, s.secret))
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	token, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		s.logger.WithContext(ctx).Debug("bearer token rejected",
			observability.String("scheme", s.name),
			observability.Error(err),
		)
		return nil, UnauthorizedWithCause("invalid token", err)
	}

	return &dispatch.SchemeResult{
		User:   token.Subject(),
		Scopes: scopesFromToken(token),
		Claims: token.PrivateClaims(),
	}, nil
}

// extractBearerToken pulls the token out of an Authorization header,
// accepting any casing of the Bearer scheme.
func extractBearerToken(header string) string {
	if len(header) <= len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// scopesFromToken extracts OAuth-style scopes from the "scope" claim.
func scopesFromToken(token jwt.Token) []string {
	claim, ok := token.Get("scope")
	if !ok {
		return nil
	}
	scope, ok := claim.(string)
	if !ok || scope == "" {
		return nil
	}
	return strings.Fields(scope)
}

// Compile-time interface assertion.
var _ Scheme = (*BearerScheme)(nil)

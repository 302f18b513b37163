package security

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
	"github.com/vyrodovalexey/apidispatch/internal/observability"
	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// BasicScheme authenticates requests with HTTP Basic credentials checked
// against stored bcrypt password hashes.
type BasicScheme struct {
	name   string
	users  map[string][]byte
	logger observability.Logger
}

// BasicOption is a functional option for the basic auth scheme.
type BasicOption func(*BasicScheme)

// WithBasicLogger sets the logger.
func WithBasicLogger(logger observability.Logger) BasicOption {
	return func(s *BasicScheme) {
		s.logger = logger
	}
}

// NewBasicScheme creates a basic auth scheme. users maps a username to
// the bcrypt hash of its password.
func NewBasicScheme(name string, users map[string][]byte, opts ...BasicOption) (*BasicScheme, error) {
	if name == "" {
		return nil, util.NewConfigError("security.basic", "scheme name is required")
	}
	if len(users) == 0 {
		return nil, util.NewConfigError("security.basic", "at least one user is required")
	}

	s := &BasicScheme{
		name:   name,
		users:  users,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// HashPassword hashes a password for storage.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// Name implements Scheme.
func (s *BasicScheme) Name() string {
	return s.name
}

// Authenticate implements Scheme.
func (s *BasicScheme) Authenticate(ctx context.Context, rc *dispatch.RequestContext) (*dispatch.SchemeResult, error) {
	username, password, ok := rc.Req.BasicAuth()
	if !ok {
		return nil, ErrNoCredentials
	}

	hash, exists := s.users[username]
	if !exists || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		s.logger.WithContext(ctx).Debug("basic credentials rejected",
			observability.String("scheme", s.name),
			observability.String("username", username),
		)
		return nil, Unauthorized("invalid username or password")
	}

	return &dispatch.SchemeResult{User: username}, nil
}

// Compile-time interface assertion.
var _ Scheme = (*BasicScheme)(nil)

package security

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
	"github.com/vyrodovalexey/apidispatch/internal/observability"
	"github.com/vyrodovalexey/apidispatch/internal/util"
)

// Default API key locations.
const (
	DefaultAPIKeyHeader = "X-API-Key"
	DefaultAPIKeyQuery  = "api_key"
)

// APIKeyEntry binds a stored bcrypt key hash to a principal.
type APIKeyEntry struct {
	// Hash is the bcrypt hash of the API key.
	Hash []byte

	// Principal identifies the key owner.
	Principal string

	// Roles granted to the principal.
	Roles []string
}

// APIKeyScheme authenticates requests by API key, extracted from a header
// or a query parameter.
type APIKeyScheme struct {
	name   string
	header string
	query  string
	keys   []APIKeyEntry
	logger observability.Logger
}

// APIKeyOption is a functional option for the API key scheme.
type APIKeyOption func(*APIKeyScheme)

// WithAPIKeyHeader sets the header the key is extracted from.
func WithAPIKeyHeader(header string) APIKeyOption {
	return func(s *APIKeyScheme) {
		s.header = header
	}
}

// WithAPIKeyQuery sets the query parameter the key is extracted from.
func WithAPIKeyQuery(param string) APIKeyOption {
	return func(s *APIKeyScheme) {
		s.query = param
	}
}

// WithAPIKeyLogger sets the logger.
func WithAPIKeyLogger(logger observability.Logger) APIKeyOption {
	return func(s *APIKeyScheme) {
		s.logger = logger
	}
}

// NewAPIKeyScheme creates an API key scheme with the given stored keys.
func NewAPIKeyScheme(name string, keys []APIKeyEntry, opts ...APIKeyOption) (*APIKeyScheme, error) {
	if name == "" {
		return nil, util.NewConfigError("security.apikey", "scheme name is required")
	}
	if len(keys) == 0 {
		return nil, util.NewConfigError("security.apikey", "at least one key is required")
	}

	s := &APIKeyScheme{
		name:   name,
		header: DefaultAPIKeyHeader,
		query:  DefaultAPIKeyQuery,
		keys:   keys,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// HashAPIKey hashes a raw API key for storage.
func HashAPIKey(key string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
}

// Name implements Scheme.
func (s *APIKeyScheme) Name() string {
	return s.name
}

// Authenticate implements Scheme.
func (s *APIKeyScheme) Authenticate(ctx context.Context, rc *dispatch.RequestContext) (*dispatch.SchemeResult, error) {
	key := rc.Req.Header.Get(s.header)
	if key == "" && s.query != "" {
		key = rc.Req.URL.Query().Get(s.query)
	}
	if key == "" {
		return nil, ErrNoCredentials
	}

	for _, entry := range s.keys {
		if bcrypt.CompareHashAndPassword(entry.Hash, []byte(key)) == nil {
			return &dispatch.SchemeResult{
				User:  entry.Principal,
				Roles: entry.Roles,
			}, nil
		}
	}

	s.logger.WithContext(ctx).Debug("API key rejected",
		observability.String("scheme", s.name),
	)
	return nil, Unauthorized("invalid API key")
}

// Compile-time interface assertion.
var _ Scheme = (*APIKeyScheme)(nil)

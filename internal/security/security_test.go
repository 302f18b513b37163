package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/apidispatch/internal/dispatch"
	"github.com/vyrodovalexey/apidispatch/internal/util"
)

func requestContext(t *testing.T, mutate func(r *http.Request)) *dispatch.RequestContext {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/v1/widgets", nil)
	if mutate != nil {
		mutate(r)
	}
	return dispatch.NewRequestContext(httptest.NewRecorder(), r, &dispatch.Resolved{})
}

func requireUnauthorized(t *testing.T, err error) {
	t.Helper()

	var statusErr *util.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Status)
}

func TestNewAPIKeyScheme_Validation(t *testing.T) {
	t.Parallel()

	hash, err := HashAPIKey("secret")
	require.NoError(t, err)

	_, err = NewAPIKeyScheme("", []APIKeyEntry{{Hash: hash}})
	assert.ErrorIs(t, err, util.ErrConfigInvalid)

	_, err = NewAPIKeyScheme("apiKey", nil)
	assert.ErrorIs(t, err, util.ErrConfigInvalid)
}

func TestAPIKeyScheme_Authenticate(t *testing.T) {
	t.Parallel()

	hash, err := HashAPIKey("top-secret")
	require.NoError(t, err)

	scheme, err := NewAPIKeyScheme("apiKey", []APIKeyEntry{
		{Hash: hash, Principal: "svc-billing", Roles: []string{"billing"}},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(r *http.Request)
		want    string
		wantErr error
	}{
		{
			name: "valid key in header",
			mutate: func(r *http.Request) {
				r.Header.Set(DefaultAPIKeyHeader, "top-secret")
			},
			want: "svc-billing",
		},
		{
			name: "valid key in query",
			mutate: func(r *http.Request) {
				q := r.URL.Query()
				q.Set(DefaultAPIKeyQuery, "top-secret")
				r.URL.RawQuery = q.Encode()
			},
			want: "svc-billing",
		},
		{
			name:    "no key present",
			wantErr: ErrNoCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := scheme.Authenticate(context.Background(), requestContext(t, tt.mutate))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.User)
			assert.Equal(t, []string{"billing"}, result.Roles)
		})
	}
}

func TestAPIKeyScheme_InvalidKey(t *testing.T) {
	t.Parallel()

	hash, err := HashAPIKey("top-secret")
	require.NoError(t, err)

	scheme, err := NewAPIKeyScheme("apiKey", []APIKeyEntry{{Hash: hash, Principal: "svc"}})
	require.NoError(t, err)

	rc := requestContext(t, func(r *http.Request) {
		r.Header.Set(DefaultAPIKeyHeader, "wrong")
	})

	_, err = scheme.Authenticate(context.Background(), rc)
	requireUnauthorized(t, err)
}

func TestAPIKeyScheme_CustomLocations(t *testing.T) {
	t.Parallel()

	hash, err := HashAPIKey("k1")
	require.NoError(t, err)

	scheme, err := NewAPIKeyScheme("apiKey", []APIKeyEntry{{Hash: hash, Principal: "svc"}},
		WithAPIKeyHeader("X-Gateway-Key"),
		WithAPIKeyQuery("gw_key"),
	)
	require.NoError(t, err)

	rc := requestContext(t, func(r *http.Request) {
		r.Header.Set("X-Gateway-Key", "k1")
	})

	result, err := scheme.Authenticate(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, "svc", result.User)

	// The default locations are no longer consulted.
	rc = requestContext(t, func(r *http.Request) {
		r.Header.Set(DefaultAPIKeyHeader, "k1")
	})

	_, err = scheme.Authenticate(context.Background(), rc)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestBasicScheme_Authenticate(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	scheme, err := NewBasicScheme("basic", map[string][]byte{"alice": hash})
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(r *http.Request)
		want    string
		wantErr error
	}{
		{
			name: "valid credentials",
			mutate: func(r *http.Request) {
				r.SetBasicAuth("alice", "hunter2")
			},
			want: "alice",
		},
		{
			name:    "no credentials",
			wantErr: ErrNoCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := scheme.Authenticate(context.Background(), requestContext(t, tt.mutate))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.User)
		})
	}
}

func TestBasicScheme_InvalidCredentials(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	scheme, err := NewBasicScheme("basic", map[string][]byte{"alice": hash})
	require.NoError(t, err)

	for _, creds := range [][2]string{
		{"alice", "wrong"},
		{"mallory", "hunter2"},
	} {
		rc := requestContext(t, func(r *http.Request) {
			r.SetBasicAuth(creds[0], creds[1])
		})

		_, err := scheme.Authenticate(context.Background(), rc)
		requireUnauthorized(t, err)
	}
}

func signToken(t *testing.T, secret []byte, mutate func(b *jwt.Builder)) string {
	t.Helper()

	b := jwt.NewBuilder().
		Subject("user-42").
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour))
	if mutate != nil {
		mutate(b)
	}

	token, err := b.Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, secret))
	require.NoError(t, err)
	return string(signed)
}

func TestNewBearerScheme_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewBearerScheme("")
	assert.ErrorIs(t, err, util.ErrConfigInvalid)

	// No key material configured.
	_, err = NewBearerScheme("bearer")
	assert.ErrorIs(t, err, util.ErrConfigInvalid)
}

func TestBearerScheme_Authenticate(t *testing.T) {
	t.Parallel()

	secret := []byte("0123456789abcdef0123456789abcdef")

	scheme, err := NewBearerScheme("bearer", WithBearerSecret(secret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{
			name:   "valid token",
			header: "Bearer " + signToken(t, secret, nil),
		},
		{
			name:   "lowercase scheme prefix",
			header: "bearer " + signToken(t, secret, nil),
		},
		{
			name:    "missing header",
			wantErr: ErrNoCredentials,
		},
		{
			name:    "non-bearer authorization",
			header:  "Basic YWxpY2U6aHVudGVyMg==",
			wantErr: ErrNoCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rc := requestContext(t, func(r *http.Request) {
				if tt.header != "" {
					r.Header.Set("Authorization", tt.header)
				}
			})

			result, err := scheme.Authenticate(context.Background(), rc)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "user-42", result.User)
		})
	}
}

func TestBearerScheme_RejectsBadTokens(t *testing.T) {
	t.Parallel()

	secret := []byte("0123456789abcdef0123456789abcdef")

	scheme, err := NewBearerScheme("bearer", WithBearerSecret(secret))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{
			name:  "garbage token",
			token: "not.a.jwt",
		},
		{
			name:  "wrong signing key",
			token: signToken(t, []byte("another-secret-another-secret-xx"), nil),
		},
		{
			name: "expired token",
			token: signToken(t, secret, func(b *jwt.Builder) {
				b.Expiration(time.Now().Add(-time.Hour))
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rc := requestContext(t, func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+tt.token)
			})

			_, err := scheme.Authenticate(context.Background(), rc)
			requireUnauthorized(t, err)
		})
	}
}

func TestBearerScheme_IssuerAndScopes(t *testing.T) {
	t.Parallel()

	secret := []byte("0123456789abcdef0123456789abcdef")

	scheme, err := NewBearerScheme("bearer",
		WithBearerSecret(secret),
		WithBearerIssuer("https://issuer.example.com"),
	)
	require.NoError(t, err)

	token := signToken(t, secret, func(b *jwt.Builder) {
		b.Issuer("https://issuer.example.com").
			Claim("scope", "widgets:read widgets:write")
	})

	rc := requestContext(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})

	result, err := scheme.Authenticate(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, []string{"widgets:read", "widgets:write"}, result.Scopes)

	// Wrong issuer fails validation.
	wrongIssuer := signToken(t, secret, func(b *jwt.Builder) {
		b.Issuer("https://other.example.com")
	})

	rc = requestContext(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+wrongIssuer)
	})

	_, err = scheme.Authenticate(context.Background(), rc)
	requireUnauthorized(t, err)
}

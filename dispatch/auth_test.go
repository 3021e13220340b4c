package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YatsauAliaksei/openapi-mcp/errdefs"
)

func TestParseAuthKind(t *testing.T) {
	tests := []struct {
		in      string
		want    AuthKind
		wantErr bool
	}{
		{"", AuthNone, false},
		{"none", AuthNone, false},
		{"Basic", AuthBasic, false},
		{"bearer", AuthBearer, false},
		{" BEARER ", AuthBearer, false},
		{"oauth2", AuthNone, true},
	}
	for _, tt := range tests {
		got, err := ParseAuthKind(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestAuthValidate(t *testing.T) {
	tests := []struct {
		name    string
		auth    Auth
		missing bool
	}{
		{name: "none", auth: Auth{}},
		{name: "basic with id and secret", auth: Auth{Kind: AuthBasic, ClientID: "id", ClientSecret: "secret"}},
		{name: "basic pre-shared token", auth: Auth{Kind: AuthBasic, ClientID: "token"}},
		{name: "basic without id", auth: Auth{Kind: AuthBasic, ClientSecret: "secret"}, missing: true},
		{name: "bearer", auth: Auth{Kind: AuthBearer, Token: "T"}},
		{name: "bearer without token", auth: Auth{Kind: AuthBearer}, missing: true},
		{name: "unknown kind", auth: Auth{Kind: "Digest"}, missing: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.auth.Validate()
			if !tt.missing {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, errdefs.KindMissingCredentials, errdefs.KindOf(err))
		})
	}
}

func TestResolve(t *testing.T) {
	assert.Empty(t, Resolve(Auth{}, nil))

	h := Resolve(Auth{Kind: AuthBearer, Token: "T"}, nil)
	assert.Equal(t, "Bearer T", h.Get("Authorization"))

	// base64("user:pass")
	h = Resolve(Auth{Kind: AuthBasic, ClientID: "user", ClientSecret: "pass"}, nil)
	assert.Equal(t, "Basic dXNlcjpwYXNz", h.Get("Authorization"))

	// base64("token:")
	h = Resolve(Auth{Kind: AuthBasic, ClientID: "token"}, nil)
	assert.Equal(t, "Basic dG9rZW46", h.Get("Authorization"))
}

func TestResolveOverride(t *testing.T) {
	stored := Auth{Kind: AuthBasic, ClientID: "user", ClientSecret: "pass"}
	override := &Auth{Kind: AuthBearer, Token: "per-call"}

	h := Resolve(stored, override)
	assert.Equal(t, "Bearer per-call", h.Get("Authorization"))

	// the stored configuration is unaffected by the override
	assert.Equal(t, Auth{Kind: AuthBasic, ClientID: "user", ClientSecret: "pass"}, stored)
	assert.Equal(t, "Basic dXNlcjpwYXNz", Resolve(stored, nil).Get("Authorization"))
}

func TestAuthStringHidesSecrets(t *testing.T) {
	a := Auth{Kind: AuthBearer, Token: "secret-token"}
	assert.Equal(t, "Bearer", a.String())
	assert.NotContains(t, a.String(), "secret")
}

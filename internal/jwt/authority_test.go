package jwt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	apperr "github.com/dropDatabas3/tokenauthority/internal/errors"
	"github.com/dropDatabas3/tokenauthority/internal/security/secretbox"
	"github.com/dropDatabas3/tokenauthority/internal/store/core"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func signOnly() core.ClientConfig {
	return core.ClientConfig{
		ID:                          "acme",
		SignatureAlgorithm:          "HS256",
		SignatureSecret:             "acme-signing-secret-0123456789abcdef",
		AccessTokenValiditySeconds:  300,
		RefreshTokenValiditySeconds: 3600,
	}
}

func encrypted(alg, enc string) core.ClientConfig {
	c := signOnly()
	c.ID = "globex"
	c.SignatureAlgorithm = "HS512"
	c.UseEncryption = true
	c.EncryptionAlgorithm = alg
	c.EncryptionMethod = enc
	c.EncryptionSecret = "globex-encryption-secret"
	return c
}

func fixedAuthority(at *time.Time) *Authority {
	return NewAuthority(nil, WithClock(func() time.Time { return *at }))
}

func TestIssueParse_SignOnly(t *testing.T) {
	now := t0
	a := fixedAuthority(&now)
	cfg := signOnly()
	ctx := context.Background()

	access, err := a.Issue(ctx, cfg, map[string]any{"sub": "alice", "authorities": []string{"admin"}}, "tid-1", 300, false)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(access, "."))

	p, err := a.Parse(ctx, cfg, access)
	require.NoError(t, err)
	assert.Equal(t, "alice", p["sub"])
	assert.Equal(t, "acme", p.Audience())
	assert.Equal(t, "tid-1", p.JwtID())
	assert.False(t, IsRefreshToken(p))
	assert.Equal(t, t0.Add(300*time.Second).Unix(), p.ExpiresAt().Unix())

	refresh, err := a.Issue(ctx, cfg, map[string]any{"sub": "alice"}, "tid-1", 3600, true)
	require.NoError(t, err)
	p, err = a.Parse(ctx, cfg, refresh)
	require.NoError(t, err)
	assert.True(t, IsRefreshToken(p))
	assert.Equal(t, "tid-1", p.RefreshJwtID())
	assert.Equal(t, "tid-1", p.JwtID())
}

func TestIssueParse_EncryptedMatrix(t *testing.T) {
	cases := []struct{ alg, enc string }{
		{"dir", "A128GCM"},
		{"dir", "A256GCM"},
		{"dir", "A128CBC-HS256"},
		{"dir", "A256CBC-HS512"},
		{"A128KW", "A128GCM"},
		{"A256KW", "A192CBC-HS384"},
		{"A192GCMKW", "A256GCM"},
		{"PBES2-HS256+A128KW", "A128GCM"},
	}
	now := t0
	a := fixedAuthority(&now)
	for _, tc := range cases {
		t.Run(tc.alg+"/"+tc.enc, func(t *testing.T) {
			cfg := encrypted(tc.alg, tc.enc)
			tok, err := a.Issue(context.Background(), cfg, map[string]any{"sub": "bob"}, "tid-2", 60, true)
			require.NoError(t, err)
			require.Equal(t, 4, strings.Count(tok, "."))

			p, err := a.Parse(context.Background(), cfg, tok)
			require.NoError(t, err)
			assert.Equal(t, "bob", p["sub"])
			assert.True(t, IsRefreshToken(p))
		})
	}
}

func TestIssue_EncryptedHeaderCarriesJWTContentType(t *testing.T) {
	now := t0
	a := fixedAuthority(&now)
	tok, err := a.Issue(context.Background(), encrypted("dir", "A256GCM"), nil, "tid", 60, false)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(strings.SplitN(tok, ".", 2)[0])
	require.NoError(t, err)
	var hdr map[string]any
	require.NoError(t, json.Unmarshal(raw, &hdr))
	assert.Equal(t, "JWT", hdr["cty"])
	assert.Equal(t, "dir", hdr["alg"])
	assert.Equal(t, "A256GCM", hdr["enc"])
}

func TestIssue_ReservedClaimsNotOverridable(t *testing.T) {
	now := t0
	a := fixedAuthority(&now)
	cfg := signOnly()
	tok, err := a.Issue(context.Background(), cfg, map[string]any{
		"aud":         "evil",
		"jti":         "forged",
		"refresh_jti": "forged",
		"exp":         t0.Add(100 * 365 * 24 * time.Hour).Unix(),
		"iat":         int64(1),
		"scope":       "read",
	}, "real", 60, false)
	require.NoError(t, err)

	p, err := a.Parse(context.Background(), cfg, tok)
	require.NoError(t, err)
	assert.Equal(t, "acme", p.Audience())
	assert.Equal(t, "real", p.JwtID())
	assert.False(t, IsRefreshToken(p))
	assert.Equal(t, t0.Add(time.Minute).Unix(), p.ExpiresAt().Unix())
	assert.Equal(t, "read", p["scope"])
}

func TestParse_Expiry(t *testing.T) {
	now := t0
	a := fixedAuthority(&now)
	cfg := signOnly()
	ctx := context.Background()

	zero, err := a.Issue(ctx, cfg, nil, "z", 0, false)
	require.NoError(t, err)
	_, err = a.Parse(ctx, cfg, zero)
	assert.ErrorIs(t, err, apperr.ErrTokenExpired)

	neg, err := a.Issue(ctx, cfg, nil, "n", -30, false)
	require.NoError(t, err)
	_, err = a.Parse(ctx, cfg, neg)
	assert.ErrorIs(t, err, apperr.ErrTokenExpired)

	tok, err := a.Issue(ctx, cfg, nil, "m", 60, false)
	require.NoError(t, err)
	now = t0.Add(59 * time.Second)
	_, err = a.Parse(ctx, cfg, tok)
	assert.NoError(t, err)
	now = t0.Add(60 * time.Second)
	_, err = a.Parse(ctx, cfg, tok)
	assert.ErrorIs(t, err, apperr.ErrTokenExpired)
}

func TestParse_ExpiredButForgedIsInvalid(t *testing.T) {
	now := t0
	a := fixedAuthority(&now)
	cfg := signOnly()
	tok, err := a.Issue(context.Background(), cfg, nil, "x", 0, false)
	require.NoError(t, err)

	other := cfg
	other.SignatureSecret = "some-other-secret"
	_, err = a.Parse(context.Background(), other, tok)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestParse_AlgorithmPinned(t *testing.T) {
	now := t0
	a := fixedAuthority(&now)
	cfg := signOnly()
	ctx := context.Background()
	tok, err := a.Issue(ctx, cfg, nil, "t", 60, false)
	require.NoError(t, err)

	stronger := cfg
	stronger.SignatureAlgorithm = "HS512"
	_, err = a.Parse(ctx, stronger, tok)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	none, err := jwtv5.NewWithClaims(jwtv5.SigningMethodNone, jwtv5.MapClaims{
		"aud": "acme", "jti": "t", "exp": t0.Add(time.Hour).Unix(),
	}).SignedString(jwtv5.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.Parse(ctx, cfg, none)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestParse_JWEAlgorithmsPinned(t *testing.T) {
	now := t0
	a := fixedAuthority(&now)
	cfg := encrypted("A128KW", "A128GCM")
	tok, err := a.Issue(context.Background(), cfg, nil, "t", 60, false)
	require.NoError(t, err)

	otherEnc := cfg
	otherEnc.EncryptionMethod = "A256GCM"
	_, err = a.Parse(context.Background(), otherEnc, tok)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	otherAlg := cfg
	otherAlg.EncryptionAlgorithm = "A256KW"
	_, err = a.Parse(context.Background(), otherAlg, tok)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	otherSecret := cfg
	otherSecret.EncryptionSecret = "nope"
	_, err = a.Parse(context.Background(), otherSecret, tok)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestParse_ShapeMismatch(t *testing.T) {
	now := t0
	a := fixedAuthority(&now)
	ctx := context.Background()
	plain := signOnly()
	enc := encrypted("dir", "A128GCM")
	enc.ID = plain.ID
	enc.SignatureAlgorithm = plain.SignatureAlgorithm

	jws, err := a.Issue(ctx, plain, nil, "t", 60, false)
	require.NoError(t, err)
	jwe, err := a.Issue(ctx, enc, nil, "t", 60, false)
	require.NoError(t, err)

	_, err = a.Parse(ctx, enc, jws)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
	_, err = a.Parse(ctx, plain, jwe)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)

	for _, garbage := range []string{"", "abc", "a.b.c", "a.b.c.d.e"} {
		_, err = a.Parse(ctx, plain, garbage)
		assert.ErrorIs(t, err, apperr.ErrTokenInvalid, garbage)
	}
}

func TestParse_ClientIsolation(t *testing.T) {
	now := t0
	a := fixedAuthority(&now)
	ctx := context.Background()
	acme := signOnly()
	// mismo secreto y algoritmo, distinto cliente
	initech := acme
	initech.ID = "initech"

	tok, err := a.Issue(ctx, acme, nil, "t", 60, false)
	require.NoError(t, err)
	_, err = a.Parse(ctx, initech, tok)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestParse_TamperedPayload(t *testing.T) {
	now := t0
	a := fixedAuthority(&now)
	cfg := signOnly()
	ctx := context.Background()
	user, err := a.Issue(ctx, cfg, map[string]any{"sub": "alice"}, "t", 60, false)
	require.NoError(t, err)
	admin, err := a.Issue(ctx, cfg, map[string]any{"sub": "root"}, "t", 60, false)
	require.NoError(t, err)

	u := strings.Split(user, ".")
	ad := strings.Split(admin, ".")
	forged := u[0] + "." + ad[1] + "." + u[2]
	_, err = a.Parse(ctx, cfg, forged)
	assert.ErrorIs(t, err, apperr.ErrTokenInvalid)
}

func TestSealedSecrets(t *testing.T) {
	box, err := secretbox.New(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	require.NoError(t, err)
	cfg := encrypted("A256GCMKW", "A256GCM")
	cfg.SignatureSecret, err = box.Seal(cfg.SignatureSecret)
	require.NoError(t, err)
	cfg.EncryptionSecret, err = box.Seal(cfg.EncryptionSecret)
	require.NoError(t, err)

	now := t0
	a := NewAuthority(box, WithClock(func() time.Time { return now }))
	tok, err := a.Issue(context.Background(), cfg, map[string]any{"sub": "carol"}, "t", 60, false)
	require.NoError(t, err)
	p, err := a.Parse(context.Background(), cfg, tok)
	require.NoError(t, err)
	assert.Equal(t, "carol", p["sub"])

	// sin master key no se puede abrir el secreto
	noKey := NewAuthority(nil)
	_, err = noKey.Issue(context.Background(), cfg, nil, "t", 60, false)
	assert.ErrorIs(t, err, apperr.ErrTokenProcessing)
	_, err = noKey.Parse(context.Background(), cfg, tok)
	assert.ErrorIs(t, err, apperr.ErrTokenProcessing)
}

func TestRoundTrip_Property(t *testing.T) {
	now := t0
	a := fixedAuthority(&now)
	cfgs := []core.ClientConfig{signOnly(), encrypted("dir", "A128CBC-HS256"), encrypted("A192KW", "A192GCM")}

	rapid.Check(t, func(rt *rapid.T) {
		cfg := cfgs[rapid.IntRange(0, len(cfgs)-1).Draw(rt, "cfg")]
		claims := rapid.MapOf(
			rapid.StringMatching(`[a-z]{1,8}`),
			rapid.String(),
		).Draw(rt, "claims")
		tokenID := rapid.StringMatching(`[A-Za-z0-9-]{1,36}`).Draw(rt, "tid")
		isRefresh := rapid.Bool().Draw(rt, "refresh")
		validity := rapid.Int64Range(1, 86400).Draw(rt, "validity")

		extra := make(map[string]any, len(claims))
		for k, v := range claims {
			extra[k] = v
		}
		tok, err := a.Issue(context.Background(), cfg, extra, tokenID, validity, isRefresh)
		if err != nil {
			rt.Fatalf("issue: %v", err)
		}
		p, err := a.Parse(context.Background(), cfg, tok)
		if err != nil {
			rt.Fatalf("parse: %v", err)
		}
		if IsRefreshToken(p) != isRefresh {
			rt.Fatalf("kind mismatch: refresh=%v", isRefresh)
		}
		if p.JwtID() != tokenID || p.Audience() != cfg.ID {
			rt.Fatalf("reserved claims altered: %v", p)
		}
		for k, v := range claims {
			if _, ok := reserved[k]; ok {
				continue
			}
			if p[k] != v {
				rt.Fatalf("claim %q: got %v want %q", k, p[k], v)
			}
		}
	})
}

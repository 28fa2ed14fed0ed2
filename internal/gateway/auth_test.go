package gateway

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/duet/internal/config"
)

const aliceDID = "did:vda:alice"

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("secret", "secret"))
	assert.True(t, safeEqual("", ""))
	assert.False(t, safeEqual("secret", "wrong"))
	assert.False(t, safeEqual("short", "longer-string"))
	assert.False(t, safeEqual("secret", ""))
	assert.False(t, safeEqual("", "secret"))
}

func TestResolveAuth(t *testing.T) {
	t.Run("token from config", func(t *testing.T) {
		auth := ResolveAuth(config.GatewayAuth{Mode: "token", Token: "config-token"}, aliceDID)
		assert.Equal(t, AuthModeToken, auth.Mode)
		assert.Equal(t, "config-token", auth.Token)
		assert.Equal(t, aliceDID, auth.Subject)
	})
	t.Run("defaults to token mode", func(t *testing.T) {
		auth := ResolveAuth(config.GatewayAuth{Token: "t"}, aliceDID)
		assert.Equal(t, AuthModeToken, auth.Mode)
	})
	t.Run("defaults to password mode when a password is set", func(t *testing.T) {
		auth := ResolveAuth(config.GatewayAuth{Password: "p"}, aliceDID)
		assert.Equal(t, AuthModePassword, auth.Mode)
	})
	t.Run("env fills empty fields", func(t *testing.T) {
		t.Setenv("DUET_GATEWAY_TOKEN", "env-token")
		t.Setenv("DUET_GATEWAY_PASSWORD", "env-pass")
		t.Setenv("DUET_GATEWAY_JWT_SECRET", "env-secret")
		auth := ResolveAuth(config.GatewayAuth{Mode: "jwt"}, aliceDID)
		assert.Equal(t, "env-token", auth.Token)
		assert.Equal(t, "env-pass", auth.Password)
		assert.Equal(t, "env-secret", auth.JWTSecret)
	})
	t.Run("config wins over env", func(t *testing.T) {
		t.Setenv("DUET_GATEWAY_TOKEN", "env-token")
		auth := ResolveAuth(config.GatewayAuth{Mode: "token", Token: "config-token"}, aliceDID)
		assert.Equal(t, "config-token", auth.Token)
	})
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name   string
		server ResolvedAuth
		client *ConnectAuth
		ok     bool
		reason string
	}{
		{"token ok", ResolvedAuth{Mode: "token", Token: "t1"}, &ConnectAuth{Token: "t1"}, true, ""},
		{"token mismatch", ResolvedAuth{Mode: "token", Token: "t1"}, &ConnectAuth{Token: "t2"}, false, "token_mismatch"},
		{"token missing", ResolvedAuth{Mode: "token", Token: "t1"}, &ConnectAuth{}, false, "token required"},
		{"server token unset", ResolvedAuth{Mode: "token"}, &ConnectAuth{Token: "t1"}, false, "server token not configured"},
		{"password ok", ResolvedAuth{Mode: "password", Password: "p1"}, &ConnectAuth{Password: "p1"}, true, ""},
		{"password mismatch", ResolvedAuth{Mode: "password", Password: "p1"}, &ConnectAuth{Password: "nope"}, false, "password_mismatch"},
		{"password missing", ResolvedAuth{Mode: "password", Password: "p1"}, &ConnectAuth{Token: "p1"}, false, "password required"},
		{"server password unset", ResolvedAuth{Mode: "password"}, &ConnectAuth{Password: "p1"}, false, "server password not configured"},
		{"jwt secret unset", ResolvedAuth{Mode: "jwt"}, &ConnectAuth{Token: "x"}, false, "server jwt secret not configured"},
		{"jwt garbage", ResolvedAuth{Mode: "jwt", JWTSecret: "s"}, &ConnectAuth{Token: "not-a-jwt"}, false, "invalid_token"},
		{"nil credentials", ResolvedAuth{Mode: "token", Token: "t1"}, nil, false, "no credentials provided"},
		{"unknown mode", ResolvedAuth{Mode: "oauth"}, &ConnectAuth{Token: "t1"}, false, "unknown auth mode: oauth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Authorize(tt.server, tt.client)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, tt.reason, res.Reason)
			if tt.ok {
				assert.Equal(t, tt.server.Mode, res.Method)
			}
		})
	}
}

func TestAuthorizeJWT(t *testing.T) {
	server := ResolvedAuth{Mode: AuthModeJWT, JWTSecret: "s3cret", Subject: aliceDID}

	token, err := IssueToken("s3cret", aliceDID, time.Hour)
	require.NoError(t, err)
	res := Authorize(server, &ConnectAuth{Token: token})
	require.True(t, res.OK, res.Reason)
	assert.Equal(t, AuthModeJWT, res.Method)
	assert.Equal(t, aliceDID, res.Subject)

	other, err := IssueToken("s3cret", "did:vda:mallory", time.Hour)
	require.NoError(t, err)
	res = Authorize(server, &ConnectAuth{Token: other})
	assert.False(t, res.OK)
	assert.Equal(t, "subject_mismatch", res.Reason)

	forged, err := IssueToken("other-secret", aliceDID, time.Hour)
	require.NoError(t, err)
	assert.False(t, Authorize(server, &ConnectAuth{Token: forged}).OK)
}

func TestParseToken(t *testing.T) {
	_, err := IssueToken("", aliceDID, time.Hour)
	assert.Error(t, err)

	expired, err := IssueToken("s", aliceDID, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(expired, "s")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: aliceDID,
		Issuer:  jwtIssuer,
	}).SignedString([]byte("s"))
	require.NoError(t, err)
	_, err = ParseToken(noExpiry, "s")
	assert.Error(t, err)

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   aliceDID,
		Issuer:    jwtIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("s"))
	require.NoError(t, err)
	_, err = ParseToken(wrongAlg, "s")
	assert.Error(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   aliceDID,
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("s"))
	require.NoError(t, err)
	_, err = ParseToken(wrongIssuer, "s")
	assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)

	good, err := IssueToken("s", aliceDID, time.Hour)
	require.NoError(t, err)
	claims, err := ParseToken(good, "s")
	require.NoError(t, err)
	assert.Equal(t, aliceDID, claims.Subject)
	assert.Equal(t, jwtIssuer, claims.Issuer)
}

func TestAuthRateLimiter(t *testing.T) {
	limiter := newAuthRateLimiter()
	assert.True(t, limiter.allow("192.168.1.1:12345"))

	for range authRateMaxFails - 1 {
		limiter.recordFailure("192.168.1.1:12345")
	}
	assert.True(t, limiter.allow("192.168.1.1:999"), "one failure left")

	limiter.recordFailure("192.168.1.1:12345")
	assert.False(t, limiter.allow("192.168.1.1:999"), "port does not matter")
	assert.True(t, limiter.allow("192.168.1.2:12345"))

	for range authRateMaxFails {
		limiter.recordFailure("10.0.0.1")
	}
	assert.False(t, limiter.allow("10.0.0.1"))
}

func TestAuthRateLimiterExpiredFailures(t *testing.T) {
	limiter := newAuthRateLimiter()

	old := time.Now().Add(-authRateWindow - time.Minute)
	limiter.mu.Lock()
	for range authRateMaxFails {
		limiter.failures["192.168.1.1"] = append(limiter.failures["192.168.1.1"], old)
	}
	limiter.mu.Unlock()

	assert.True(t, limiter.allow("192.168.1.1:12345"))
	limiter.mu.Lock()
	_, tracked := limiter.failures["192.168.1.1"]
	limiter.mu.Unlock()
	assert.False(t, tracked)
}

func TestAuthRateLimiterEvictsAtCapacity(t *testing.T) {
	limiter := newAuthRateLimiter()
	for i := range authRateMaxIPs {
		limiter.recordFailure(fmt.Sprintf("10.%d.%d.%d", i>>16&0xff, i>>8&0xff, i&0xff))
	}
	limiter.recordFailure("192.168.1.1")

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Len(t, limiter.failures, authRateMaxIPs)
	assert.Contains(t, limiter.failures, "192.168.1.1")
}

func TestCheckWebSocketOrigin(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest("GET", "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.True(t, checkWebSocketOrigin(nil)(req("")), "non-browser clients")
	assert.False(t, checkWebSocketOrigin(nil)(req("http://evil.example")))
	assert.True(t, checkWebSocketOrigin([]string{"*"})(req("http://anything.example")))

	check := checkWebSocketOrigin([]string{"http://one.local", "http://two.local"})
	assert.True(t, check(req("http://one.local")))
	assert.True(t, check(req("http://two.local")))
	assert.False(t, check(req("http://three.local")))
}

package gateway

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/soyeahso/duet/internal/config"
)

// Auth modes.
const (
	AuthModeToken    = "token"
	AuthModePassword = "password"
	AuthModeJWT      = "jwt"
)

const jwtIssuer = "duet"

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK      bool   `json:"ok"`
	Method  string `json:"method,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Subject string `json:"subject,omitempty"` // jwt subject DID
}

// ResolvedAuth holds the resolved auth configuration for the gateway.
type ResolvedAuth struct {
	Mode      string
	Token     string
	Password  string
	JWTSecret string
	// Subject is the DID a jwt must be issued for.
	Subject string
}

// ResolveAuth resolves credentials from config and environment.
// Precedence: config value → env variable → empty.
func ResolveAuth(cfg config.GatewayAuth, subject string) ResolvedAuth {
	auth := ResolvedAuth{Mode: cfg.Mode, Subject: subject}

	auth.Token = cfg.Token
	if auth.Token == "" {
		auth.Token = os.Getenv("DUET_GATEWAY_TOKEN")
	}
	auth.Password = cfg.Password
	if auth.Password == "" {
		auth.Password = os.Getenv("DUET_GATEWAY_PASSWORD")
	}
	auth.JWTSecret = cfg.JWTSecret
	if auth.JWTSecret == "" {
		auth.JWTSecret = os.Getenv("DUET_GATEWAY_JWT_SECRET")
	}

	if auth.Mode == "" {
		if auth.Password != "" {
			auth.Mode = AuthModePassword
		} else {
			auth.Mode = AuthModeToken
		}
	}
	return auth
}

// Authorize checks the provided ConnectAuth against the resolved server auth.
func Authorize(serverAuth ResolvedAuth, clientAuth *ConnectAuth) AuthResult {
	if clientAuth == nil {
		return AuthResult{Reason: "no credentials provided"}
	}

	switch serverAuth.Mode {
	case AuthModeToken:
		if serverAuth.Token == "" {
			return AuthResult{Reason: "server token not configured"}
		}
		if clientAuth.Token == "" {
			return AuthResult{Reason: "token required"}
		}
		if !safeEqual(clientAuth.Token, serverAuth.Token) {
			return AuthResult{Reason: "token_mismatch"}
		}
		return AuthResult{OK: true, Method: AuthModeToken}

	case AuthModePassword:
		if serverAuth.Password == "" {
			return AuthResult{Reason: "server password not configured"}
		}
		if clientAuth.Password == "" {
			return AuthResult{Reason: "password required"}
		}
		if !safeEqual(clientAuth.Password, serverAuth.Password) {
			return AuthResult{Reason: "password_mismatch"}
		}
		return AuthResult{OK: true, Method: AuthModePassword}

	case AuthModeJWT:
		if serverAuth.JWTSecret == "" {
			return AuthResult{Reason: "server jwt secret not configured"}
		}
		if clientAuth.Token == "" {
			return AuthResult{Reason: "token required"}
		}
		claims, err := ParseToken(clientAuth.Token, serverAuth.JWTSecret)
		if err != nil {
			return AuthResult{Reason: "invalid_token"}
		}
		if serverAuth.Subject != "" && claims.Subject != serverAuth.Subject {
			return AuthResult{Reason: "subject_mismatch"}
		}
		return AuthResult{OK: true, Method: AuthModeJWT, Subject: claims.Subject}

	default:
		return AuthResult{Reason: "unknown auth mode: " + serverAuth.Mode}
	}
}

// IssueToken signs an HS256 gateway token for subject valid for ttl.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    jwtIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken validates a gateway token and returns its claims.
func ParseToken(tokenString, secret string) (*jwt.RegisteredClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(jwtIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse gateway token: %w", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid gateway token")
	}
	return claims, nil
}

// safeEqual performs a constant-time string comparison that does not leak
// the secret's length.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

// authRateLimiter tracks failed handshakes per IP.
type authRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
}

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxIPs   = 10000
)

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{failures: make(map[string][]time.Time)}
}

func hostOf(remoteAddr string) string {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		return remoteAddr
	}
	return host
}

// recent drops failures outside the window. Caller holds l.mu.
func (l *authRateLimiter) recent(host string) []time.Time {
	cutoff := time.Now().Add(-authRateWindow)
	times := l.failures[host]
	filtered := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	if len(filtered) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = filtered
	return filtered
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(hostOf(remoteAddr))) < authRateMaxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.failures[host]; !exists && len(l.failures) >= authRateMaxIPs {
		for ip := range l.failures {
			if l.recent(ip) == nil {
				continue
			}
			delete(l.failures, ip)
			break
		}
	}
	l.failures[host] = append(l.failures[host], time.Now())
}

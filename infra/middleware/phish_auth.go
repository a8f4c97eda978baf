package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"phish_server/pkg/apperr"
	"phish_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const HeaderAPIKey = "X-Api-Key"

var (
	errNoCredential   = errors.New("no credential presented")
	errBadAPIKey      = errors.New("api key mismatch")
	errJWTDisabled    = errors.New("bearer tokens not configured")
	errMissingSubject = errors.New("token has no subject")
)

// AuthConfig selects the accepted credentials. An empty JWTSecret disables
// bearer tokens.
type AuthConfig struct {
	APIKey    string
	JWTSecret string
	Leeway    time.Duration
}

// Authenticator checks x-api-key or an HS256 bearer token.
type Authenticator struct {
	apiKey    []byte
	jwtSecret []byte
	parser    *jwt.Parser
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = time.Minute
	}
	a := &Authenticator{
		apiKey: []byte(cfg.APIKey),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(leeway),
			jwt.WithIssuedAt(),
			jwt.WithExpirationRequired(),
		),
	}
	if cfg.JWTSecret != "" {
		a.jwtSecret = []byte(cfg.JWTSecret)
	}
	return a
}

// APIKeyOnly accepts only the x-api-key header.
func (a *Authenticator) APIKeyOnly() fiber.Handler {
	return a.handler(false)
}

// Handler accepts x-api-key or, when configured, a bearer token.
func (a *Authenticator) Handler() fiber.Handler {
	return a.handler(true)
}

func (a *Authenticator) handler(allowBearer bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID, err := a.authenticate(c, allowBearer)
		if err != nil {
			// the presented value is never logged
			logger.WithContext(UserContext(c)).
				WithField("reason", err.Error()).
				WithField("ip", c.IP()).
				Warn("unauthorized request to %s", c.Path())
			return apperr.Unauthorized("unauthorized")
		}
		c.Locals(LocalClientID, clientID)
		return c.Next()
	}
}

func (a *Authenticator) authenticate(c *fiber.Ctx, allowBearer bool) (string, error) {
	// fasthttp header lookup is case-insensitive
	if key := c.Get(HeaderAPIKey); key != "" {
		if !a.checkAPIKey(key) {
			return "", errBadAPIKey
		}
		return "key:" + fingerprint(key), nil
	}

	if !allowBearer {
		return "", errNoCredential
	}
	token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return "", errNoCredential
	}
	return a.checkToken(token)
}

func (a *Authenticator) checkAPIKey(key string) bool {
	if len(a.apiKey) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), a.apiKey) == 1
}

func (a *Authenticator) checkToken(raw string) (string, error) {
	if a.jwtSecret == nil {
		return "", errJWTDisabled
	}

	claims := &jwt.RegisteredClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errMissingSubject
	}
	return "sub:" + claims.Subject, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// fingerprint identifies a key in logs and rate limits without revealing it.
func fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}

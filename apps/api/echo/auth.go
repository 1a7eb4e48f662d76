package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core"
)

const (
	contextTokenKey = "userToken"
	tokenAudience   = "Pariksha"
)

// Claims represents the authorization claims transmitted via a JWT.
// Users are managed upstream; the subject is their id.
type Claims struct {
	jwt.StandardClaims
	Username string `json:"username,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
}

// NewClaims returns claims for `userID`, valid for conf.Server.JWTExpirationDelta.
func NewClaims(conf *core.Config, userID, username string, isAdmin bool) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   userID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Username: username,
		IsAdmin:  isAdmin,
	}
}

func (c Claims) actor() core.Actor {
	return core.Actor{ID: c.Subject, Username: c.Username, IsAdmin: c.IsAdmin}
}

func jwtConfig(secretKey string) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(secretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(claims *Claims, secretKey string) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)

	ss, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// canActFor reports whether the authenticated user may read or write `userID`'s data.
func canActFor(ctx echo.Context, userID string) (Claims, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return Claims{}, err
	}
	if claims.IsAdmin || claims.Subject == userID {
		return claims, nil
	}
	return Claims{}, errHttpForbidden
}

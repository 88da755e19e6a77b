package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"medkit/internal/common"
	"medkit/internal/logger"
)

const tokenContextKey = "operator_token"

// OperatorClaims are the claims accepted on operator tokens. The subject
// identifies the operator in audit entries.
type OperatorClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// NewJWKSKeyfunc fetches the key set at url and keeps it refreshed until ctx
// is done.
func NewJWKSKeyfunc(ctx context.Context, url string) (*keyfunc.JWKS, error) {
	return keyfunc.Get(url, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Warn(ctx, "jwks refresh failed", logger.String("url", url), logger.ErrorF(err))
		},
	})
}

// JWTAuth verifies bearer tokens with keyFunc when given, the HS256 secret
// otherwise, and puts the token subject on the request context as the
// operator.
func JWTAuth(secret string, keyFunc jwt.Keyfunc) echo.MiddlewareFunc {
	cfg := echojwt.Config{
		ContextKey: tokenContextKey,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(OperatorClaims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			msg := "invalid token"
			if errors.Is(err, echojwt.ErrJWTMissing) {
				msg = "missing token"
			}
			return c.JSON(http.StatusUnauthorized, common.CreateErrorResponse("UNAUTHORIZED", msg, nil))
		},
	}
	if keyFunc != nil {
		cfg.KeyFunc = keyFunc
	} else {
		cfg.SigningKey = []byte(secret)
		cfg.SigningMethod = echojwt.AlgorithmHS256
	}

	verify := echojwt.WithConfig(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return verify(withOperator(next))
	}
}

func withOperator(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := c.Get(tokenContextKey).(*jwt.Token)
		if !ok {
			return c.JSON(http.StatusUnauthorized, common.CreateErrorResponse("UNAUTHORIZED", "invalid token", nil))
		}
		claims, ok := token.Claims.(*OperatorClaims)
		if !ok || strings.TrimSpace(claims.Subject) == "" {
			return c.JSON(http.StatusUnauthorized, common.CreateErrorResponse("UNAUTHORIZED", "token has no subject", nil))
		}

		ctx := common.WithOperator(c.Request().Context(), claims.Subject)
		ctx = logger.ContextWithFields(ctx, logger.String("operator", claims.Subject))
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

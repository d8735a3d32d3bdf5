package auth

import (
	"net/http"

	"family-booking/internal/httpx"
	"family-booking/internal/models"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// JWT validates the bearer token and stores the caller under the httpx keys.
func JWT(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: jwt.SigningMethodHS256.Alg(),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(Claims)
		},
		SuccessHandler: func(c echo.Context) {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return
			}
			claims, ok := token.Claims.(*Claims)
			if !ok {
				return
			}
			c.Set(httpx.KeyUserID, claims.Subject)
			c.Set(httpx.KeyUserRole, claims.Role)
			if claims.ProviderID != "" {
				c.Set(httpx.KeyProviderID, claims.ProviderID)
			}
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: models.ErrInvalidToken.Error(), Code: "invalid_token"})
		},
	})
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(httpx.KeyUserRole).(string)
			for _, r := range roles {
				if r == role {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: models.ErrForbidden.Error(), Code: "forbidden"})
		}
	}
}

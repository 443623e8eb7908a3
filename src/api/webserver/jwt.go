package webserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/errs"
)

func JWTMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		tok, err := jwt.Parse(h[7:], func(t *jwt.Token) (interface{}, error) { return secret, nil })
		if err != nil || !tok.Valid {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		claims, ok := tok.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		uid, ok := claims["uid"].(float64)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set("uid", uint64(uid))
		c.Next()
	}
}

// userID reads the authenticated user from the gin context.
func userID(c *gin.Context) uint64 {
	v, _ := c.Get("uid")
	id, _ := v.(uint64)
	return id
}

// fail maps the platform error taxonomy onto HTTP statuses. Unexpected
// errors surface as an opaque 500.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"err": errs.ErrInvalid.Error()})
	case errors.Is(err, errs.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"err": errs.ErrUnauthenticated.Error()})
	case errors.Is(err, errs.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"err": errs.ErrForbidden.Error()})
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"err": errs.ErrNotFound.Error()})
	case errors.Is(err, errs.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{"err": errs.ErrInsufficientFunds.Error()})
	case errors.Is(err, errs.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"err": errs.ErrInvalidState.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"err": "internal error"})
	}
}

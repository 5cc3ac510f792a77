package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v4"
)

const (
	JWTClaimUserID   = "user_id"
	JWTClaimUsername = "username"
)

var ErrNoUserInContext = errors.New("user claims not found in context or invalid type")

// WithClaims кладёт claims в контекст так же, как Authenticate.
func WithClaims(ctx context.Context, claims jwt.MapClaims) context.Context {
	return context.WithValue(ctx, userContextKey, claims)
}

func GetUserIDFromContext(ctx context.Context) (int, error) {
	claims, ok := ctx.Value(userContextKey).(jwt.MapClaims)
	if !ok {
		return 0, ErrNoUserInContext
	}

	userIDClaim, ok := claims[JWTClaimUserID]
	if !ok {
		return 0, fmt.Errorf("missing '%s' claim in token", JWTClaimUserID)
	}

	var userID int
	switch v := userIDClaim.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("'%s' claim is not an integer: %f", JWTClaimUserID, v)
		}
		userID = int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid '%s' claim %q: %w", JWTClaimUserID, v, err)
		}
		userID = n
	default:
		return 0, fmt.Errorf("invalid type for '%s' claim: expected float64 or string, got %T", JWTClaimUserID, userIDClaim)
	}

	if userID <= 0 {
		return 0, fmt.Errorf("invalid user ID value in '%s' claim: %d", JWTClaimUserID, userID)
	}
	return userID, nil
}

package middleware

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"msgrelay/internal/errors"
	"msgrelay/internal/httputil"
	"msgrelay/internal/tracing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Claims are the JWT claims accepted by the API.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Auth requires an HS256 bearer token signed with secret. The token must carry a user id
// and an expiry; the user id is stored in the request context.
func Auth(secret string, logger *logrus.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httputil.WriteError(w, r, errors.NewAuthError("missing authorization header"))
				return
			}

			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				httputil.WriteError(w, r, errors.NewAuthError("malformed authorization header"))
				return
			}

			claims := &Claims{}
			_, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
				return key, nil
			})
			if err != nil {
				reason := "invalid token"
				if stderrors.Is(err, jwt.ErrTokenExpired) {
					reason = "token expired"
				}
				logger.WithFields(logrus.Fields{
					LogFieldRemoteIP:  httputil.GetClientIP(r),
					LogFieldRequestID: tracing.GetRequestID(r.Context()),
				}).WithError(err).Warn("Rejected API token")
				httputil.WriteError(w, r, errors.NewAuthError(reason))
				return
			}
			if claims.UserID == "" {
				httputil.WriteError(w, r, errors.NewAuthError("token has no user id"))
				return
			}

			ctx := tracing.WithUserID(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GenerateToken signs an HS256 token for userID that expires after ttl.
func GenerateToken(userID, secret string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", stderrors.New("user ID is required")
	}
	if secret == "" {
		return "", stderrors.New("JWT secret is required")
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

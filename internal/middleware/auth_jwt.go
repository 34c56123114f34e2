package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// OwnerClaims is the HS256 token payload issued by the account service.
// Sub is the owner id jobs are created under.
type OwnerClaims struct {
	Sub      string `json:"sub"`
	Exp      int64  `json:"exp"`
	Issuer   string `json:"iss,omitempty"`
	Audience string `json:"aud,omitempty"`
}

type ownerKey struct{}

var (
	errMalformedToken = errors.New("malformed token")
	errBadSignature   = errors.New("invalid signature")
	errTokenExpired   = errors.New("token expired")
	errMissingSubject = errors.New("token has no subject")
)

// SignJWT issues a token. Used by tests and local tooling.
func SignJWT(secret string, claims OwnerClaims) (string, error) {
	headerJSON, err := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	if err != nil {
		return "", err
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	data := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(payloadJSON)
	return data + "." + hmacSign(secret, data), nil
}

func hmacSign(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyJWT checks signature and expiry at now.
func VerifyJWT(secret, token string, now time.Time) (*OwnerClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errMalformedToken
	}
	expected := hmacSign(secret, parts[0]+"."+parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return nil, errBadSignature
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, errMalformedToken
	}
	var claims OwnerClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, errMalformedToken
	}
	if claims.Exp != 0 && now.Unix() > claims.Exp {
		return nil, errTokenExpired
	}
	if strings.TrimSpace(claims.Sub) == "" {
		return nil, errMissingSubject
	}
	return &claims, nil
}

// AuthJWT rejects requests without a valid bearer token and stores the
// owner id in the request context.
func AuthJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization")
				return
			}
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				writeAuthError(w, "invalid authorization")
				return
			}
			claims, err := VerifyJWT(secret, strings.TrimSpace(token), time.Now())
			if err != nil {
				writeAuthError(w, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithOwnerID(r.Context(), claims.Sub)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "detail": msg})
}

func OwnerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ownerKey{}).(string); ok {
		return v
	}
	return ""
}

func ContextWithOwnerID(ctx context.Context, ownerID string) context.Context {
	if strings.TrimSpace(ownerID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

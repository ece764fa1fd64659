// Package turn issues time-limited TURN credentials using the coturn REST API scheme
// (use-auth-secret). The TURN server validates them with the same shared secret.
package turn

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"msgrelay/internal/constants"
	"msgrelay/internal/errors"
	"msgrelay/internal/models"
)

// Credentials is the payload handed to clients for their ICE configuration.
type Credentials struct {
	Username string    `json:"username"`
	Password string    `json:"password"`
	TTL      int       `json:"ttl"`
	URIs     []string  `json:"uris"`
	Expires  time.Time `json:"expires"`
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	uris   []string
	now    func() time.Time
}

// NewIssuer returns nil when no secret is configured.
func NewIssuer(cfg models.TurnConfig) *Issuer {
	if cfg.Secret == "" {
		return nil
	}
	ttl := cfg.TTLSec
	if ttl <= 0 {
		ttl = constants.DefaultTurnTTLSec
	}
	return &Issuer{
		secret: []byte(cfg.Secret),
		ttl:    time.Duration(ttl) * time.Second,
		uris:   append([]string(nil), cfg.URIs...),
		now:    time.Now,
	}
}

// Issue builds credentials for userID. The username is "<unix expiry>:<userID>" and the
// password is the base64 HMAC-SHA1 of the username.
func (i *Issuer) Issue(userID string) (Credentials, error) {
	if userID == "" {
		return Credentials{}, errors.NewValidationError("userID", "", "user id is required")
	}
	if strings.Contains(userID, ":") {
		return Credentials{}, errors.NewValidationError("userID", userID, "user id must not contain ':'")
	}

	expires := i.now().Add(i.ttl).UTC().Truncate(time.Second)
	username := strconv.FormatInt(expires.Unix(), 10) + ":" + userID

	return Credentials{
		Username: username,
		Password: sign(i.secret, username),
		TTL:      int(i.ttl / time.Second),
		URIs:     append([]string(nil), i.uris...),
		Expires:  expires,
	}, nil
}

// Verify reports whether username/password were issued with this secret and are unexpired.
func (i *Issuer) Verify(username, password string) bool {
	expiry, _, ok := strings.Cut(username, ":")
	if !ok {
		return false
	}
	unix, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil || i.now().Unix() > unix {
		return false
	}
	return hmac.Equal([]byte(sign(i.secret, username)), []byte(password))
}

func sign(secret []byte, username string) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

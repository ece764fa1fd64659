package turn

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"testing"
	"time"

	"msgrelay/internal/errors"
	"msgrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedIssuer(t *testing.T, cfg models.TurnConfig, now time.Time) *Issuer {
	t.Helper()
	issuer := NewIssuer(cfg)
	require.NotNil(t, issuer)
	issuer.now = func() time.Time { return now }
	return issuer
}

func TestNewIssuer_DisabledWithoutSecret(t *testing.T) {
	assert.Nil(t, NewIssuer(models.TurnConfig{}))
}

func TestIssue(t *testing.T) {
	now := time.Unix(1700000000, 0)
	issuer := fixedIssuer(t, models.TurnConfig{
		Secret: "north",
		URIs:   []string{"turn:turn.example.com:3478?transport=udp"},
	}, now)

	creds, err := issuer.Issue("alice")
	require.NoError(t, err)

	assert.Equal(t, "1700086400:alice", creds.Username)
	assert.Equal(t, 86400, creds.TTL)
	assert.Equal(t, []string{"turn:turn.example.com:3478?transport=udp"}, creds.URIs)
	assert.Equal(t, time.Unix(1700086400, 0).UTC(), creds.Expires)

	mac := hmac.New(sha1.New, []byte("north"))
	mac.Write([]byte("1700086400:alice"))
	assert.Equal(t, base64.StdEncoding.EncodeToString(mac.Sum(nil)), creds.Password)
}

func TestIssue_CustomTTL(t *testing.T) {
	issuer := fixedIssuer(t, models.TurnConfig{Secret: "s", TTLSec: 600}, time.Unix(1000, 0))

	creds, err := issuer.Issue("bob")
	require.NoError(t, err)
	assert.Equal(t, "1600:bob", creds.Username)
	assert.Equal(t, 600, creds.TTL)
}

func TestIssue_RejectsBadUserID(t *testing.T) {
	issuer := fixedIssuer(t, models.TurnConfig{Secret: "s"}, time.Unix(1000, 0))

	for _, id := range []string{"", "a:b"} {
		_, err := issuer.Issue(id)
		require.Error(t, err, id)
		assert.Equal(t, errors.ErrCodeValidationFailed, errors.GetCode(err))
	}
}

func TestVerify(t *testing.T) {
	now := time.Unix(1000, 0)
	issuer := fixedIssuer(t, models.TurnConfig{Secret: "s", TTLSec: 60}, now)

	creds, err := issuer.Issue("carol")
	require.NoError(t, err)

	assert.True(t, issuer.Verify(creds.Username, creds.Password))
	assert.False(t, issuer.Verify(creds.Username, "wrong"))
	assert.False(t, issuer.Verify("nocolon", creds.Password))

	other := fixedIssuer(t, models.TurnConfig{Secret: "other", TTLSec: 60}, now)
	assert.False(t, other.Verify(creds.Username, creds.Password))

	issuer.now = func() time.Time { return now.Add(2 * time.Minute) }
	assert.False(t, issuer.Verify(creds.Username, creds.Password))
}

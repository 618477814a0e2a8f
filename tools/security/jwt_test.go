package security

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerify_RoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("s3cret"))
	tok, exp, err := Generate(opts, Subject{ID: "u1", DisplayName: "Ann", AvatarRef: "a.png"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), exp, 5*time.Second)

	sub, err := Verify(opts, tok)
	require.NoError(t, err)
	assert.Equal(t, Subject{ID: "u1", DisplayName: "Ann", AvatarRef: "a.png"}, *sub)
}

func TestVerify_Rejects(t *testing.T) {
	opts := DefaultOptions([]byte("s3cret"))
	good, _, err := Generate(opts, Subject{ID: "u1"})
	require.NoError(t, err)

	expired, _, err := Generate(Options{Secret: opts.Secret, TTL: time.Nanosecond}, Subject{ID: "u1"})
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	otherKey, _, err := Generate(DefaultOptions([]byte("other")), Subject{ID: "u1"})
	require.NoError(t, err)

	hs512, _, err := Generate(Options{Secret: opts.Secret, Alg: "HS512"}, Subject{ID: "u1"})
	require.NoError(t, err)

	noSub, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(opts.Secret)
	require.NoError(t, err)

	noExp, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		Subject: "u1",
	}).SignedString(opts.Secret)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":      "",
		"garbage":    "not.a.jwt",
		"tampered":   good + "x",
		"expired":    expired,
		"wrong key":  otherKey,
		"wrong alg":  hs512,
		"no subject": noSub,
		"no expiry":  noExp,
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Verify(opts, tok)
			assert.Error(t, err)
		})
	}
}

func TestGenerate_Validates(t *testing.T) {
	_, _, err := Generate(Options{Secret: []byte("k"), Alg: "RS256"}, Subject{ID: "u1"})
	assert.Error(t, err)
	_, _, err = Generate(Options{}, Subject{ID: "u1"})
	assert.Error(t, err)
	_, _, err = Generate(DefaultOptions([]byte("k")), Subject{})
	assert.Error(t, err)
}

func TestHashToken_Stable(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
}

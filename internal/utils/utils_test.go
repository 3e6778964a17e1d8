package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestVerifyPasswordBcrypt(t *testing.T) {
	hash, err := HashPassword("s3cret-pass", bcrypt.MinCost)
	require.NoError(t, err)
	require.True(t, IsBcryptHash(hash))

	ok, upgrade := VerifyPassword(hash, "s3cret-pass")
	assert.True(t, ok)
	assert.False(t, upgrade)

	ok, _ = VerifyPassword(hash, "wrong")
	assert.False(t, ok)
}

func TestVerifyPasswordLegacyPlaintext(t *testing.T) {
	ok, upgrade := VerifyPassword("legacy-pass", "legacy-pass")
	assert.True(t, ok)
	assert.True(t, upgrade)

	ok, upgrade = VerifyPassword("legacy-pass", "legacy-pas")
	assert.False(t, ok)
	assert.False(t, upgrade)

	ok, _ = VerifyPassword("", "")
	assert.False(t, ok)
}

func TestGeneratePassword(t *testing.T) {
	p, err := GeneratePassword(14)
	require.NoError(t, err)
	assert.Len(t, p, 14)
	for _, r := range p {
		assert.True(t, strings.ContainsRune(tempPasswordAlphabet, r))
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, "SUMMER10", "AFFILIATE", 15)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(15*time.Minute), tok.Exp, 5*time.Second)

	claims, err := ParseAccessToken("secret", tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "SUMMER10", claims["code"])
	assert.Equal(t, "AFFILIATE", claims["role"])
	assert.EqualValues(t, 42, claims["sub"])

	_, err = ParseAccessToken("other", tok.Token)
	assert.Error(t, err)
}

func TestRefreshTokenHash(t *testing.T) {
	r, err := NewRefreshToken(7)
	require.NoError(t, err)
	assert.Len(t, r.Raw, 96)
	assert.Len(t, HashRefreshRaw(r.Raw), 64)
	assert.Equal(t, HashRefreshRaw(r.Raw), HashRefreshRaw(r.Raw))
}

func TestNormalizePage(t *testing.T) {
	cases := []struct {
		name               string
		page, size         int
		wantPage, wantSize int
	}{
		{"defaults", 0, 0, 1, 20},
		{"negative page", -3, 10, 1, 10},
		{"clamped size", 2, 1000, 2, 100},
		{"in range", 4, 50, 4, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, s := NormalizePage(tc.page, tc.size, 20, 100)
			assert.Equal(t, tc.wantPage, p)
			assert.Equal(t, tc.wantSize, s)
		})
	}
}

func TestNewPage(t *testing.T) {
	p := NewPage(2, 20, 41)
	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasPrev)
	assert.True(t, p.HasNext)
	assert.Equal(t, 20, Offset(2, 20))

	last := NewPage(3, 20, 41)
	assert.False(t, last.HasNext)

	empty := NewPage(1, 20, 0)
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNext)
	assert.False(t, empty.HasPrev)
}

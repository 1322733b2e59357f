package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	const secret = "test-secret"

	tok, err := NewAccessToken(secret, 42, "researcher", 5)
	require.NoError(t, err)
	require.NotEmpty(t, tok.Token)

	uid, err := ParseAccessToken(secret, tok.Token)
	require.NoError(t, err)
	require.Equal(t, uint64(42), uid)
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	tok, err := NewAccessToken("secret-a", 1, "admin", 5)
	require.NoError(t, err)

	_, err = ParseAccessToken("secret-b", tok.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessToken_Expired(t *testing.T) {
	tok, err := NewAccessToken("secret", 1, "admin", -1)
	require.NoError(t, err)

	_, err = ParseAccessToken("secret", tok.Token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessToken_Garbage(t *testing.T) {
	_, err := ParseAccessToken("secret", "not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		problems int
	}{
		{"valid", "Sup3r$ecretPass", 0},
		{"too short", "Ab1$xyz", 1},
		{"missing upper", "lowercase1$pass", 1},
		{"missing lower", "UPPERCASE1$PASS", 1},
		{"missing digit", "NoDigits$Here!!", 1},
		{"missing special", "NoSpecials12345", 1},
		{"everything wrong", "abc", 4},
		{"empty", "", 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Len(t, ValidatePassword(tc.password), tc.problems)
		})
	}
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("Sup3r$ecretPass", 4) // low cost to keep the test fast
	require.NoError(t, err)
	require.True(t, VerifyPassword(hash, "Sup3r$ecretPass"))
	require.False(t, VerifyPassword(hash, "wrong-password"))
}

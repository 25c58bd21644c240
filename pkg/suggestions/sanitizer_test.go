package suggestions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeWithFallbackRedactsSecrets(t *testing.T) {
	s := NewSanitizer()
	result, err := s.SanitizeWithFallback("password: secret123")
	require.NoError(t, err)
	require.Contains(t, result, "***REDACTED***")
	require.NotContains(t, result, "secret123")
}

func TestSanitizeWithFallbackEmptyInput(t *testing.T) {
	s := NewSanitizer()
	result, err := s.SanitizeWithFallback("")
	require.NoError(t, err)
	require.Empty(t, result)
}

func TestSanitizeWithFallbackPreservesNonSecretContent(t *testing.T) {
	s := NewSanitizer()
	result, err := s.SanitizeWithFallback("Turn on the kitchen light when motion is detected")
	require.NoError(t, err)
	require.Equal(t, "Turn on the kitchen light when motion is detected", result)
}

func TestSafeFallbackRedactsMultipleSecretsAndDelimiters(t *testing.T) {
	s := NewSanitizer()
	inputs := []string{
		"password:secret123",
		"password: secret123",
		"password: 'secret123'",
		`password: "secret123"`,
		"password: secret123,",
	}
	for _, in := range inputs {
		result := s.SafeFallback(in)
		require.NotContains(t, result, "secret123", "input: %s", in)
		require.Contains(t, result, "[REDACTED]", "input: %s", in)
	}
}

func TestSafeFallbackCaseInsensitive(t *testing.T) {
	s := NewSanitizer()
	result := s.SafeFallback("API_KEY: sk-abc123")
	require.Contains(t, result, "[REDACTED]")
	require.NotContains(t, result, "sk-abc123")
}

func TestSafeFallbackNoSecretsReturnsOriginal(t *testing.T) {
	s := NewSanitizer()
	input := "This is a normal description with no credentials"
	require.Equal(t, input, s.SafeFallback(input))
}

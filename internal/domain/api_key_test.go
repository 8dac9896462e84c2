package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		wantErr bool
	}{
		{name: "generate test key", env: EnvTest},
		{name: "generate live key", env: EnvLive},
		{name: "invalid environment", env: "staging", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plainKey, hash, err := GenerateAPIKey(tt.env)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			expectedPrefix := "pres_" + tt.env + "_"
			assert.True(t, strings.HasPrefix(plainKey, expectedPrefix))
			assert.Len(t, plainKey, len(expectedPrefix)+apiKeyLength)
			assert.Equal(t, HashAPIKey(plainKey), hash)
			assert.True(t, IsValidFormat(plainKey))
		})
	}
}

func TestHashAPIKey(t *testing.T) {
	key := "pres_test_ABC123XYZ789"

	assert.Equal(t, HashAPIKey(key), HashAPIKey(key))
	assert.Len(t, HashAPIKey(key), 64)
	assert.NotEqual(t, HashAPIKey(key), HashAPIKey(key+"x"))
}

func TestMatchAPIKey(t *testing.T) {
	key, hash, err := GenerateAPIKey(EnvTest)
	require.NoError(t, err)

	assert.True(t, MatchAPIKey(key, hash))
	assert.True(t, MatchAPIKey(key, strings.ToUpper(hash)))
	assert.False(t, MatchAPIKey(key+"x", hash))
	assert.False(t, MatchAPIKey("", hash))
	assert.False(t, MatchAPIKey(key, ""))
}

func TestIsValidFormat(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{name: "valid", key: "pres_live_" + strings.Repeat("a", 32), want: true},
		{name: "wrong prefix", key: "rk_live_" + strings.Repeat("a", 32), want: false},
		{name: "wrong env", key: "pres_prod_" + strings.Repeat("a", 32), want: false},
		{name: "short random", key: "pres_live_abc", want: false},
		{name: "invalid chars", key: "pres_live_" + strings.Repeat("-", 32), want: false},
		{name: "missing parts", key: "pres", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidFormat(tt.key))
		})
	}
}

// SPDX-License-Identifier: Apache-2.0

package token_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openworkers/postgate/pkg/token"
)

func TestMint(t *testing.T) {
	tok, err := token.Mint()
	require.NoError(t, err)

	assert.True(t, token.FormatValid(tok))
	assert.Len(t, tok, len(token.Prefix)+64)
}

func TestMintIsUnique(t *testing.T) {
	a, err := token.Mint()
	require.NoError(t, err)
	b, err := token.Mint()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestFormatValid(t *testing.T) {
	tests := map[string]struct {
		token string
		valid bool
	}{
		"well formed token": {
			token: "pg_" + "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
			valid: true,
		},
		"missing prefix": {
			token: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd",
			valid: false,
		},
		"uppercase hex": {
			token: "pg_" + "0123456789ABCDEF0123456789abcdef0123456789abcdef0123456789abcdef",
			valid: false,
		},
		"too short": {
			token: "pg_abc",
			valid: false,
		},
		"empty": {
			token: "",
			valid: false,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.valid, token.FormatValid(tt.token))
		})
	}
}

func TestHashIsStableAndDeterministic(t *testing.T) {
	tok, err := token.Mint()
	require.NoError(t, err)

	h1 := token.Hash(tok)
	h2 := token.Hash(tok)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashDiffersPerToken(t *testing.T) {
	a, err := token.Mint()
	require.NoError(t, err)
	b, err := token.Mint()
	require.NoError(t, err)

	assert.NotEqual(t, token.Hash(a), token.Hash(b))
}

func TestDisplayPrefix(t *testing.T) {
	tok := "pg_" + "abcdef0123456789abcdef0123456789abcdef0123456789abcdef01234567"
	assert.Equal(t, "abcdef01", token.DisplayPrefix(tok))
}

func TestExtractFromHeader(t *testing.T) {
	tests := map[string]struct {
		header  string
		wantErr bool
		want    string
	}{
		"valid bearer": {
			header: "Bearer pg_abc",
			want:   "pg_abc",
		},
		"missing header": {
			header:  "",
			wantErr: true,
		},
		"wrong scheme": {
			header:  "Basic dXNlcjpwYXNz",
			wantErr: true,
		},
		"empty token": {
			header:  "Bearer ",
			wantErr: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}

			got, err := token.ExtractFromHeader(h)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

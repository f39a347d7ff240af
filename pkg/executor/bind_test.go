// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindParams(t *testing.T) {
	tests := map[string]struct {
		params []string
		want   []any
	}{
		"null": {
			params: []string{"null"},
			want:   []any{nil},
		},
		"bool": {
			params: []string{"true", "false"},
			want:   []any{true, false},
		},
		"integer number binds as int64": {
			params: []string{"42", "-7"},
			want:   []any{int64(42), int64(-7)},
		},
		"fractional number binds as float64": {
			params: []string{"3.14"},
			want:   []any{float64(3.14)},
		},
		"string": {
			params: []string{`"hello"`},
			want:   []any{"hello"},
		},
		"array becomes json text": {
			params: []string{"[1,2,3]"},
			want:   []any{"[1,2,3]"},
		},
		"object becomes json text": {
			params: []string{`{"a":1}`},
			want:   []any{`{"a":1}`},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			raw := make([]json.RawMessage, len(tt.params))
			for i, p := range tt.params {
				raw[i] = json.RawMessage(p)
			}

			got, err := bindParams(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBindParamsRejectsInvalidJSON(t *testing.T) {
	_, err := bindParams([]json.RawMessage{json.RawMessage("{not json")})
	assert.Error(t, err)
}

// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"bytes"
	"encoding/json"
)

// bindParams converts a request's JSON parameter list into values
// database/sql can pass positionally to lib/pq. A JSON number that fits
// an int64 binds as one, so integer columns don't round-trip through
// float64; anything else numeric falls back to float64. Arrays and
// objects are re-marshalled to their compact JSON text so the driver
// sends them as plain text the server can cast into jsonb at the call
// site.
func bindParams(params []json.RawMessage) ([]any, error) {
	out := make([]any, len(params))

	for i, raw := range params {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()

		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}

		switch val := v.(type) {
		case nil:
			out[i] = nil
		case bool, string:
			out[i] = val
		case json.Number:
			if n, err := val.Int64(); err == nil {
				out[i] = n
				continue
			}
			f, err := val.Float64()
			if err != nil {
				return nil, err
			}
			out[i] = f
		case []any, map[string]any:
			b, err := json.Marshal(val)
			if err != nil {
				return nil, err
			}
			out[i] = string(b)
		default:
			out[i] = val
		}
	}

	return out, nil
}

package mpesa

import (
	"encoding/json"
)

const redacted = "[REDACTED]"

var sensitiveFields = map[string]struct{}{
	"SecurityCredential": {},
	"InitiatorPassword":  {},
	"Password":           {},
	"access_token":       {},
	"Authorization":      {},
}

// redactJSON returns body with sensitive top-level fields masked. Bodies
// that are not JSON objects are replaced wholesale so nothing leaks.
func redactJSON(body []byte) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return redacted
	}
	masked, _ := json.Marshal(redacted)
	for k := range fields {
		if _, ok := sensitiveFields[k]; ok {
			fields[k] = masked
		}
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return redacted
	}
	return string(out)
}

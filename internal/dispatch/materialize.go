package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const headerContentType = "content-type"

// materialize converts the context's response state and a candidate body
// value into the canonical Result. The candidate is inspected in strict
// priority order: absent, raw bytes, text, stream, structured value. Byte
// and stream payloads bypass JSON serialization entirely so binary and
// streamed responses are never corrupted by stringification. Status and
// headers always come from the context's response state.
func materialize(rc *RequestContext, candidate any) (*Result, error) {
	result := &Result{
		Status:  rc.Response().StatusCode(),
		Headers: lowercaseHeaders(rc.Response().Headers()),
	}

	switch body := candidate.(type) {
	case nil:
		// No content to send.
	case []byte:
		result.Body = bytes.NewReader(body)
	case string:
		result.Body = strings.NewReader(body)
	case io.Reader:
		result.Body = body
	default:
		if result.Headers[headerContentType] == "" {
			result.Headers[headerContentType] = "application/json"
		}
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize response body: %w", err)
		}
		result.Body = bytes.NewReader(encoded)
	}

	return result, nil
}

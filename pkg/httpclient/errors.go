package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/hernancolliard/tienda-online/pkg/errors"
)

// maxErrorBody caps how much of an error body is read.
const maxErrorBody = 64 << 10

// providerError covers the error bodies seen from upstreams: a flat
// {"message","error"} object or the {"error":{"code","message"}} envelope.
type providerError struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

func (p providerError) text() string {
	if p.Message != "" {
		return p.Message
	}
	var nested struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(p.Error, &nested) == nil && nested.Message != "" {
		return nested.Message
	}
	var flat string
	if json.Unmarshal(p.Error, &flat) == nil {
		return flat
	}
	return ""
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// maps the status onto an AppError. Anything an end user cannot fix by
// changing the request (5xx, 429, auth failures against the upstream)
// becomes ErrUnavailable.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	var pe providerError
	if json.Unmarshal(body, &pe) == nil {
		if t := pe.text(); t != "" {
			msg = t
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	qualified := fmt.Sprintf("%s: %s", upstream, msg)
	cause := fmt.Errorf("%s returned status %d", upstream, resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(qualified)
	case http.StatusNotFound:
		return apperrors.NotFound(upstream, msg)
	case http.StatusConflict:
		return apperrors.Conflict(qualified)
	default:
		return apperrors.Unavailable(qualified, cause)
	}
}

// IsSuccess reports whether status is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

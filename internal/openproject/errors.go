package openproject

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody caps how much of an error response body is read.
const maxErrorBody = 64 << 10

// ErrNotFound is matched by errors.Is for 404 responses.
var ErrNotFound = errors.New("not found")

// APIError is returned when OpenProject answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Status     string
	Method     string
	URL        string

	// ErrorIdentifier and Message come from the HAL error body, when present.
	ErrorIdentifier string
	Message         string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s %s returned %s", e.Method, e.URL, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is reports 404 responses as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// newAPIError builds an APIError from a failed response. The body is parsed
// as an OpenProject error document on a best-effort basis.
func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
	if resp.Request != nil {
		apiErr.Method = resp.Request.Method
		apiErr.URL = resp.Request.URL.Redacted()
	}
	if apiErr.Status == "" {
		apiErr.Status = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var body apiErrorBody
	if json.Unmarshal(data, &body) == nil {
		apiErr.ErrorIdentifier = body.ErrorIdentifier
		apiErr.Message = body.Message
	}
	return apiErr
}

package mesonet

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrUnknownService is returned for a service name the API does not offer.
	ErrUnknownService = errors.New("unknown service")

	// ErrNoToken is returned when a client is built without an access token.
	ErrNoToken = errors.New("mesonet api token is not configured")
)

// ParamError reports an option value that could not be converted into the
// form the API expects. It is always raised before any network call.
type ParamError struct {
	Key    string
	Value  any
	Reason string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid parameter %s=%v: %s", e.Key, e.Value, e.Reason)
}

// APIError is returned when the API embeds a non-success code in SUMMARY.
type APIError struct {
	Service Service
	Code    int
	Message string

	url string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mesonet %s request rejected: %s (url: %s)", e.Service, e.Message, RedactURL(e.url))
}

// URL returns the request URL with the token redacted.
func (e *APIError) URL() string {
	return RedactURL(e.url)
}

// DebugURL returns the request URL exactly as sent, token included.
func (e *APIError) DebugURL() string {
	return e.url
}

// RedactURL replaces the token query value so the URL is safe to log.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

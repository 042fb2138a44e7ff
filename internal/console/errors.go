package console

import (
	"fmt"

	"github.com/go-resty/resty/v2"
)

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed: %s %s (status: %d)", e.Method, e.URL, e.Code)
}

// StatusCode returns the HTTP status of the failed response.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// handleError turns non-2xx responses into a *StatusError. Without this,
// failing responses would have nil error.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if !res.IsSuccess() {
		return res, &StatusError{
			Method: res.Request.Method,
			URL:    res.Request.URL,
			Code:   res.StatusCode(),
			Body:   string(res.Body()),
		}
	}
	return res, nil
}

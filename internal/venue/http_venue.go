// Shared HTTP transport embedded by every concrete venue adapter, grounded
// on the teacher's MempoolBackend base type: one resty client, one base URL,
// retry on transport errors and 5xx/429.
package venue

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// httpVenue is the shared transport base every concrete adapter embeds.
type httpVenue struct {
	name    string
	network string
	http    *resty.Client
}

func newHTTPVenue(name, network, baseURL string) *httpVenue {
	baseURL = strings.TrimSuffix(baseURL, "/")

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(3 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
		})

	return &httpVenue{name: name, network: network, http: client}
}

func (v *httpVenue) Name() string    { return v.name }
func (v *httpVenue) Network() string { return v.network }

// mapStatusError translates an HTTP status code to a venue sentinel error.
func mapStatusError(status int, body string) error {
	switch status {
	case http.StatusNotFound:
		return ErrPairNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("venue: unexpected status %d: %s", status, body)
	}
}

func mapTimeoutErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ErrVenueTimeout
	}
	return err
}

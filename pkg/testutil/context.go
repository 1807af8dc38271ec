package testutil

import (
	"net/http"
	"time"

	id "tcr/pkg/domain"
	"tcr/pkg/requestcontext"
)

// AsParty marks req as sent by an authenticated party, as the auth middleware
// would. An invalid address leaves req anonymous.
func AsParty(req *http.Request, address string) *http.Request {
	caller, err := id.ParseAddress(address)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// AtTime pins the request clock.
func AtTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}

package testutil

import (
	"net/http"
	"time"

	id "amparo/pkg/domain"
	"amparo/pkg/requestcontext"
)

// WithReviewer adds a reviewer id to the request context, simulating
// what the auth middleware does for authenticated requests. Invalid ids
// are silently ignored.
func WithReviewer(req *http.Request, reviewerID string) *http.Request {
	parsed, err := id.ParseReviewerID(reviewerID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithReviewerID(req.Context(), parsed))
}

// WithRequestTime pins the request clock so lock and history timestamps
// are deterministic in tests.
func WithRequestTime(req *http.Request, at time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), at))
}

// Package feed fetches the open GitHub notification threads for the
// authenticated user and marks threads read on acknowledgment.
package feed

import "fmt"

// Item is one open notification thread as returned by the feed.
//
// ID is the stable, feed-assigned thread identity the relay keys on.
// Title and URL are snapshots; the relay never refreshes them.
type Item struct {
	ID     string
	Title  string
	URL    string
	Type   string // Issue, PullRequest, Release, ...
	Reason string // mention, review_requested, ...
	Repo   string
}

// StatusError reports a non-success HTTP response from the feed API.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("feed %s: http %d: %s", e.Op, e.Code, e.Body)
	}
	return fmt.Sprintf("feed %s: http %d", e.Op, e.Code)
}

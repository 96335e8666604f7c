package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Feed adapters, stores and caches
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
//   - ErrNotFound: document or key does not exist
//   - ErrConflict: document already exists
//   - ErrUnavailable: transport or backing store temporarily unavailable
//   - ErrDisposed: subscription or view already torn down
//   - ErrUnknownTopic: topic not served by the feed
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("unavailable")
	ErrDisposed     = errors.New("disposed")
	ErrUnknownTopic = errors.New("unknown topic")
)

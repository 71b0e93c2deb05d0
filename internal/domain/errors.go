package domain

import "errors"

var (
	// ErrPhunkNotFound is returned when a phunk is not found
	ErrPhunkNotFound = errors.New("phunk not found")

	// ErrStaleEvent is returned when an event's ordering key is not greater
	// than the last committed key for its hash id
	ErrStaleEvent = errors.New("stale or duplicate event")

	// ErrCreatorConflict is returned when a second creation for an existing
	// hash id carries a different creator
	ErrCreatorConflict = errors.New("duplicate creation with conflicting creator")

	// ErrPhunkIDReassignment is returned on an attempt to change a settled phunk id
	ErrPhunkIDReassignment = errors.New("phunk id already assigned")

	// ErrWatermarkBehindFork is returned when a reorg reaches deeper than the
	// recorded block journal
	ErrWatermarkBehindFork = errors.New("fork point below recorded block journal")
)

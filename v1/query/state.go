package query

import "time"

// Status is the data status of an entry.
type Status int

const (
	// StatusPending means no fetch has settled since the last one started,
	// or none was ever issued.
	StatusPending Status = iota
	// StatusSuccess means the latest fetch resolved.
	StatusSuccess
	// StatusError means the latest fetch failed.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	}
	return "pending"
}

// FetchStatus tells whether a fetch is currently in flight.
type FetchStatus int

const (
	FetchIdle FetchStatus = iota
	Fetching
)

func (s FetchStatus) String() string {
	if s == Fetching {
		return "fetching"
	}
	return "idle"
}

// State is an immutable snapshot of an entry.
//
// Data keeps the last successfully fetched value across later fetches and
// failures; HasData tells whether there ever was one.
type State[T any] struct {
	Data           T
	HasData        bool
	Err            error
	Status         Status
	FetchStatus    FetchStatus
	FailureCount   int
	UpdatedAt      time.Time
	ErrorUpdatedAt time.Time
}

// IsLoading reports whether a fetch is in flight.
func (s State[T]) IsLoading() bool { return s.FetchStatus == Fetching }

// IsInitialLoading reports whether a fetch is in flight with no data to show.
func (s State[T]) IsInitialLoading() bool { return s.FetchStatus == Fetching && !s.HasData }

// IsError reports whether the latest fetch failed.
func (s State[T]) IsError() bool { return s.Status == StatusError }

// IsSuccess reports whether the latest fetch resolved.
func (s State[T]) IsSuccess() bool { return s.Status == StatusSuccess }

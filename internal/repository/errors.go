package repository

import "errors"

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrTableNotFound      = errors.New("table not found in tournament")
	ErrAllocationNotFound = errors.New("allocation not found")

	// ErrTableOccupied means another allocation in the same round already
	// holds the target table.
	ErrTableOccupied = errors.New("table already occupied in this round")

	// ErrVersionConflict means the allocation changed between read and
	// write; the caller should reload and retry.
	ErrVersionConflict = errors.New("allocation was modified concurrently")
)

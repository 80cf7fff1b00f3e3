package selection

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrUnknownIdentifier   = errors.New("unknown identifier")
	ErrInsufficientResults = errors.New("insufficient results")
)

// UnknownIdentifierError lists every requested identifier the store does
// not know, next to the ones it does.
type UnknownIdentifierError struct {
	Missing []string
	Known   []string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("unknown identifiers: %s", strings.Join(e.Missing, ", "))
}

func (e *UnknownIdentifierError) Is(target error) bool {
	return target == ErrUnknownIdentifier
}

// InsufficientResultsError is returned when fewer coverages than the
// required minimum were selected.
type InsufficientResultsError struct {
	Found    int
	Required int
}

func (e *InsufficientResultsError) Error() string {
	return fmt.Sprintf("selection returned %d coverages, at least %d required", e.Found, e.Required)
}

func (e *InsufficientResultsError) Is(target error) bool {
	return target == ErrInsufficientResults
}

// CyclicHierarchyWarning records a membership edge that leads back to a
// collection on the current expansion path. Expansion continues.
type CyclicHierarchyWarning struct {
	Collection string
	Child      string
}

func (w CyclicHierarchyWarning) String() string {
	return fmt.Sprintf("collection %s contains its ancestor %s", w.Collection, w.Child)
}

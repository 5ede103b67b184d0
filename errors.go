package dipolar

import (
	"github.com/pkg/errors"
)

var (
	// ErrConfiguration marks invalid or inconsistent model and lattice parameters.
	ErrConfiguration = errors.New("configuration error")
	// ErrLookup marks a reference to an operator or site that does not exist.
	ErrLookup = errors.New("lookup error")
)

package engine

import (
	"errors"
	"fmt"

	"github.com/Pankaj-chhatani/stumps/pkg/stump"
)

// Common errors. ErrInvalidArgument aliases the stump package's
// sentinel so errors.Is works uniformly across both packages.
var (
	ErrInvalidArgument = stump.ErrInvalidArgument
	ErrNotFound        = errors.New("not found")
	ErrDisposed        = errors.New("instance is disposed")
)

// ErrNameExists reports a duplicate stump name. It is a kind of
// invalid-argument failure.
var ErrNameExists = fmt.Errorf("%w: stump name already exists", ErrInvalidArgument)

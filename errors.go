package hybtrack

import "github.com/pkg/errors"

// ErrInvalidInput covers the hard-failure input validation cases of §7: a
// detection tuple array whose length is not a multiple of 6, a frame byte
// buffer whose length does not equal width*height, or non-positive
// dimensions.
var ErrInvalidInput = errors.New("hybtrack: invalid input")

// ErrIntermediateNotAllowed is returned by UpdateWithoutDetections when the
// controller was created with keyframe_interval == 1, in which case the
// optical-flow path never runs and every frame must go through
// UpdateWithDetections.
var ErrIntermediateNotAllowed = errors.New("hybtrack: updateWithoutDetections is not legal when keyframe_interval is 1")

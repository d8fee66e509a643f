package ratelimiter

import "errors"

// ErrInvalidConfiguration is returned by NewConfig when a tunable is out of
// its documented range. It is the only error this package raises loudly;
// every runtime failure mode is reported through return values instead.
var ErrInvalidConfiguration = errors.New("ratelimiter: invalid configuration")

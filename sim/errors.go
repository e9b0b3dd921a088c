package sim

import "errors"

// Errors that terminate a run. Packages wrap them with fmt.Errorf and callers
// test for them with errors.Is.
var (
	// ErrConfiguration reports malformed run parameters, such as a bad
	// covariance matrix or keyframes out of order. It is raised before the
	// run starts.
	ErrConfiguration = errors.New("configuration error")

	// ErrSampling reports a distribution that cannot be sampled from. It is
	// raised when the distribution is constructed, never at draw time.
	ErrSampling = errors.New("sampling error")

	// ErrIO reports a failed write of run output. The run aborts on it.
	ErrIO = errors.New("io error")
)

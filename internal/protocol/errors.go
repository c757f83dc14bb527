package protocol

import "errors"

// errSendTimeout is returned when a worker's outbound queue stays full
// past the configured backpressure grace period.
var errSendTimeout = errors.New("protocol: send grace period exceeded")

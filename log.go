package reach

import "github.com/digineo/go-reach/internal"

var (
	log = internal.Logger

	// SetLogger allows updating the Logger. For details, see
	// "github.com/digineo/go-logwrap".Instance.SetLogger.
	SetLogger = internal.SetLogger
)

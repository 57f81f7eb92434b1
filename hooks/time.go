package hooks

import "time"

// nowUnix is isolated in its own tiny function so tests can see exactly
// where wall-clock time enters the hook bus.
func nowUnix() int64 { return time.Now().Unix() }

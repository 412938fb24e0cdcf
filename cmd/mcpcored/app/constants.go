package app

import "time"

// shutdownTimeout is the deadline of the context serve passes to
// Orchestrator.Shutdown. Only context-aware teardown steps (such as the
// streamable-HTTP session DELETE) observe it; a stdio child gets its own
// SIGTERM-to-SIGKILL grace period regardless of this deadline.
const shutdownTimeout = 10 * time.Second

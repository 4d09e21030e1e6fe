package heap

import (
	"fmt"
	"log"
	"os"
)

// Compile-time toggle for internal invariant checks on the hot paths.
// Violations indicate heap corruption and panic immediately.
const debugChecks = false

// Runtime toggle for allocation tracing - controlled by HEAPKIT_LOG_ALLOC.
var logAlloc = os.Getenv("HEAPKIT_LOG_ALLOC") != ""

func assertf(cond bool, msg string, args ...any) {
	if debugChecks && !cond {
		panic(fmt.Sprintf("heap: "+msg, args...))
	}
}

func tracef(msg string, args ...any) {
	if logAlloc {
		log.Printf("heapkit: "+msg, args...)
	}
}

// Package sandbox manages job resource scopes: uniquely named temporary
// directories that hold a job's source file for the duration of one
// toolchain invocation and are removed afterwards.
package sandbox

import (
	"fmt"
	"time"
)

// DefaultSourceFilename is the canonical name of the source file inside a
// scope.
const DefaultSourceFilename = "main.cpp"

// Config holds scope creation and teardown settings.
type Config struct {
	Root           string        // parent directory; os.TempDir() when empty
	SourceFilename string        // canonical source file name
	CleanupRetries int           // removal attempts before giving up
	CleanupDelay   time.Duration // pause between removal attempts
}

// DefaultConfig returns the default scope settings.
func DefaultConfig() Config {
	return Config{
		SourceFilename: DefaultSourceFilename,
		CleanupRetries: 3,
		CleanupDelay:   100 * time.Millisecond,
	}
}

// CleanupError indicates a scope directory survived every removal attempt.
type CleanupError struct {
	Dir      string
	Attempts int
	Err      error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("remove scope %s after %d attempts: %v", e.Dir, e.Attempts, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

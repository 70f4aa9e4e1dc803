// Package id provides unique identifier generation for render jobs.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique job ID.
// Format: clip-<timestamp>-<random>
// Example: clip-1701432000-a1b2c3d4e5f6
func Generate() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("clip-%d-%s", time.Now().Unix(), random[:12])
}

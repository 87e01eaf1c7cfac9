// Package metrics records node I/O outcomes.
package metrics

import (
	"time"

	"enkfcore/pkg/nodeapi"
)

// Operations observed by storage.
const (
	OpWrite = "write"
	OpRead  = "read"
)

// Recorder observes the outcome of one node read or write.
type Recorder interface {
	Observe(op string, impl nodeapi.ImplType, bytes int64, duration time.Duration, err error)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) Observe(string, nodeapi.ImplType, int64, time.Duration, error) {}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

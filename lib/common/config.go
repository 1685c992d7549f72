// this code is based on https://github.com/pzhzqt/goostub

package common

import (
	"time"
)

// CycleDetectionInterval is the sleep period of the background deadlock
// detector between scans of the wait-for graph.
var CycleDetectionInterval time.Duration = 50 * time.Millisecond

var EnableLogging bool = false
var EnableDebug bool = false

const (
	// invalid page id
	InvalidPageID = -1
	// invalid transaction id
	InvalidTxnID = -1
	// invalid log sequence number
	InvalidLSN = -1
	// the header page id
	HeaderPageID = 0
	// size of a data page in byte
	PageSize = 4096
	// size of the log buffer in byte
	LogBufferSize = (PageSize + 1) * 32
)

package testsupport

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// testSequence starts from the clock so reruns against the same database do not collide
var testSequence = uint64(time.Now().UnixNano() % 1000000)

// NextSequence returns next unique sequence number
func NextSequence() uint64 {
	return atomic.AddUint64(&testSequence, 1)
}

// UniqueName generates a unique name with given prefix
// Example: UniqueName("doc") -> "doc_123456"
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, NextSequence())
}

// UniqueCompany returns a company name no other test writes to
func UniqueCompany() string {
	return UniqueName("TestCo")
}

// UniqueRequestID returns a fresh response ID
func UniqueRequestID() string {
	return uuid.NewString()
}

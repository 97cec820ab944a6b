package library

import (
	"github.com/sasha-s/go-deadlock"
)

// ValidateSaneExecutionTime trips the deadlock detector if the returned
// function is not called within its timeout. Wrap handler dispatch with it.
func ValidateSaneExecutionTime() func() {
	mu := deadlock.Mutex{}
	mu.Lock()
	go func() {
		mu.Lock()
		mu.Unlock()
	}()
	return func() {
		mu.Unlock()
	}
}

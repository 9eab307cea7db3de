package testutil

import (
	"testing"
)

// TestSuite provides common setup and teardown functionality for tests
type TestSuite struct {
	t *testing.T
}

// NewTestSuite creates a new test suite
func NewTestSuite(t *testing.T) *TestSuite {
	return &TestSuite{t: t}
}

// Setup runs before each test
func (s *TestSuite) Setup() {
	s.t.Helper()
	// Add common setup logic here
	// e.g., database connections, mock servers, etc.
}

// Teardown runs after each test
func (s *TestSuite) Teardown() {
	s.t.Helper()
	// Add common cleanup logic here
	// e.g., close connections, clean up resources, etc.
}

// AssertEqual checks if two values are equal
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// AssertTrue checks if a condition is true
func AssertTrue(t *testing.T, condition bool, message string) {
	t.Helper()
	if !condition {
		t.Errorf("assertion failed: %s", message)
	}
}

// RunTest wraps a test function with setup and teardown
func (s *TestSuite) RunTest(name string, testFunc func()) {
	s.t.Run(name, func(t *testing.T) {
		s.Setup()
		defer s.Teardown()
		testFunc()
	})
}

package logging

import (
	"testing"

	"go.viam.com/test"
)

func TestSubloggerNaming(t *testing.T) {
	logger := NewTestLogger(t)
	child := logger.Sublogger("ba")
	test.That(t, child, test.ShouldNotBeNil)

	// Sublogger must not panic and must return a usable Logger.
	child.Debugf("iteration %d", 3)
	grandchild := child.Sublogger("solver")
	grandchild.Infof("converged in %d iterations", 5)
}

func TestNewLoggerDoesNotPanic(t *testing.T) {
	logger := NewLogger("monoslam")
	logger.Infof("hello %s", "world")
}

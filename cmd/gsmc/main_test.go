package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeSuccess(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
}

func TestExitCodeInterrupted(t *testing.T) {
	assert.Equal(t, 130, exitCode(context.Canceled))
}

func TestExitCodeInterruptedWrapped(t *testing.T) {
	err := fmt.Errorf("reconcile: %w", context.Canceled)
	assert.Equal(t, 130, exitCode(err))
}

func TestExitCodeUsageError(t *testing.T) {
	assert.Equal(t, 2, exitCode(newUsageError("--game is required")))
}

func TestExitCodeUsageErrorWrapped(t *testing.T) {
	err := fmt.Errorf("build app: %w", newUsageError("bad flag"))
	assert.Equal(t, 2, exitCode(err))
}

func TestExitCodeGeneric(t *testing.T) {
	assert.Equal(t, 1, exitCode(errors.New("boom")))
}

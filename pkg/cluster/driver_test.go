package cluster

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	transient := &TransientError{Op: "spawn", Err: errors.New("connection reset")}
	fatal := &FatalError{Op: "image pull", Err: errors.New("image not found")}

	assert.True(t, IsTransient(transient))
	assert.False(t, IsFatal(transient))
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsTransient(fatal))

	// Classification survives wrapping
	wrapped := fmt.Errorf("starting service web: %w", transient)
	assert.True(t, IsTransient(wrapped))

	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsFatal(nil))
}

func TestErrorMessages(t *testing.T) {
	te := &TransientError{Op: "spawn", Err: errors.New("timeout")}
	assert.Contains(t, te.Error(), "spawn")
	assert.Contains(t, te.Error(), "timeout")

	fe := &FatalError{Op: "image pull", Err: errors.New("no such image")}
	assert.Contains(t, fe.Error(), "image pull")
	assert.ErrorIs(t, fe, fe.Err)
}

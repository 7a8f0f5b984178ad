package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKVAdapter_PairsArguments(t *testing.T) {
	l, buf := newTestLogger(t)
	kv := NewKVAdapter(l)

	kv.Warn("model call failed", "error", errors.New("timeout"), "tokens", 12, 42, "odd")
	kv.Info("dangling", "only-key")

	out := buf.String()
	assert.Contains(t, out, `"error":"timeout"`)
	assert.Contains(t, out, `"tokens":12`)
	assert.Contains(t, out, `"42":"odd"`)
	assert.Contains(t, out, `"!BADKEY":"only-key"`)
}

func TestKVAdapter_NilLoggerIsNop(t *testing.T) {
	kv := NewKVAdapter(nil)
	kv.Debug("nothing happens", "k", "v")
}

//Personal.AI order the ending

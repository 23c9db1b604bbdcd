package clipboard

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestCopySystem(t *testing.T) {
	var got string
	var term bytes.Buffer
	c := &Copier{
		WriteSystem: func(s string) error { got = s; return nil },
		Terminal:    &term,
	}

	m, err := c.Copy("a cat, best quality")
	require.NoError(t, err)
	assert.Equal(t, MethodSystem, m)
	assert.Equal(t, "a cat, best quality", got)
	assert.Zero(t, term.Len())
}

func TestCopyFallsBackToOSC52(t *testing.T) {
	var term bytes.Buffer
	c := &Copier{
		WriteSystem: func(string) error { return errors.New("no xclip") },
		Terminal:    &term,
	}

	m, err := c.Copy("a cat")
	require.NoError(t, err)
	assert.Equal(t, MethodOSC52, m)
	assert.Contains(t, term.String(), base64.StdEncoding.EncodeToString([]byte("a cat")))
	assert.Contains(t, term.String(), "\x1b]52;")
}

func TestCopyFailure(t *testing.T) {
	c := &Copier{
		WriteSystem: func(string) error { return errors.New("no xclip") },
	}
	_, err := c.Copy("a cat")
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "no xclip")

	c.Terminal = failingWriter{}
	_, err = c.Copy("a cat")
	require.ErrorAs(t, err, &ce)
	assert.Error(t, ce.OSC52)
}

package cxerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsUnwrap(t *testing.T) {
	root := errors.New("boom")

	cases := []error{
		NewOpenError("Symbol", root),
		NewParseError("a.c", root),
		NewCorruptRecord("Symbol", "key", root),
		NewFatal("listen", root),
	}
	for _, err := range cases {
		assert.ErrorIs(t, err, root)
		assert.NotEmpty(t, err.Error())
	}
}

func TestProtocolAndCancelledHaveNoUnderlying(t *testing.T) {
	p := NewProtocolError("bad frame")
	assert.Contains(t, p.Error(), "bad frame")

	c := NewCancelledJob("a.c")
	assert.Contains(t, c.Error(), "a.c")
}

package apperr

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("submit: %w", Conflict("bot is already running for %s", "alice"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "submit: bot is already running for alice", err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(ErrArchive, io.ErrUnexpectedEOF, "failed to extract session")

	assert.True(t, errors.Is(err, ErrArchive))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Contains(t, err.Error(), "unexpected EOF")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("missing"), http.StatusBadRequest},
		{New(ErrArchive, "bad zip"), http.StatusBadRequest},
		{NotFound("nope"), http.StatusNotFound},
		{Conflict("busy"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

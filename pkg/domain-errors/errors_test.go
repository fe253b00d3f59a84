package domainerrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "comitia/pkg/domain-errors"
)

func TestWrapKeepsCauseReachable(t *testing.T) {
	cause := errors.New("connection refused")
	err := dErrors.Wrap(cause, dErrors.CodeInternal, "load user")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "load user: connection refused", err.Error())
	assert.Equal(t, "load user", err.Message())
}

func TestHasCodeWalksTheChain(t *testing.T) {
	inner := dErrors.New(dErrors.CodeConflict, "credential already in use")
	outer := dErrors.Wrap(inner, dErrors.CodeInternal, "create profile")
	wrapped := fmt.Errorf("service: %w", outer)

	assert.True(t, dErrors.HasCode(wrapped, dErrors.CodeInternal))
	assert.True(t, dErrors.HasCode(wrapped, dErrors.CodeConflict))
	assert.False(t, dErrors.HasCode(wrapped, dErrors.CodeNotFound))
	assert.False(t, dErrors.HasCode(nil, dErrors.CodeConflict))
}

func TestCodeOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, dErrors.CodeInternal, dErrors.CodeOf(errors.New("sql: bad conn")))

	err := dErrors.New(dErrors.CodeForbidden, "commissioner role required")
	assert.Equal(t, dErrors.CodeForbidden, dErrors.CodeOf(fmt.Errorf("handler: %w", err)))
}

func TestMessageOfStripsCause(t *testing.T) {
	cause := errors.New("pq: duplicate key")
	err := dErrors.Wrap(cause, dErrors.CodeConflict, "application already open")

	assert.Equal(t, "application already open", dErrors.MessageOf(err))
	assert.Equal(t, "pq: duplicate key", dErrors.MessageOf(cause))
}

func TestNewfFormats(t *testing.T) {
	err := dErrors.Newf(dErrors.CodeInvalidInput, "unknown role %q", "admin")
	assert.Equal(t, `unknown role "admin"`, err.Error())
}

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeCode(t *testing.T) {
	code := MakeCode(ServiceDocQuery, CategoryResource, 1)
	assert.Equal(t, 2004001, code)

	service, category, seq := ParseCode(code)
	assert.Equal(t, ServiceDocQuery, service)
	assert.Equal(t, CategoryResource, category)
	assert.Equal(t, 1, seq)

	assert.True(t, IsClientError(ErrJobNotFound.Code))
	assert.False(t, IsClientError(ErrQueryFailed.Code))
}

func TestErrnoCopies(t *testing.T) {
	cause := stderrors.New("redis down")
	e := ErrJobStore.WithCause(cause).WithMessage("cannot load job")

	assert.Equal(t, "cannot load job", e.MessageEN)
	assert.Equal(t, "Job store unavailable", ErrJobStore.MessageEN, "original must not change")
	assert.ErrorIs(t, e, cause)
	assert.ErrorIs(t, e, ErrJobStore)
	assert.Equal(t, http.StatusInternalServerError, e.HTTPStatus())
	assert.Contains(t, e.Error(), "redis down")
}

func TestErrnoMessage(t *testing.T) {
	assert.Equal(t, "任务不存在", ErrJobNotFound.Message("zh-CN"))
	assert.Equal(t, "Job not found", ErrJobNotFound.Message("en"))
	assert.Equal(t, "custom 7", ErrInvalidRequest.WithMessagef("custom %d", 7).Message("zh"))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	wrapped := fmt.Errorf("handler: %w", ErrQueryTimeout)
	assert.Equal(t, ErrQueryTimeout.Code, FromError(wrapped).Code)
	assert.True(t, IsCode(wrapped, ErrQueryTimeout.Code))

	plain := FromError(stderrors.New("boom"))
	assert.Equal(t, ErrInternal.Code, plain.Code)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	_, ok := Lookup(ErrJobNotFound.Code)
	require.True(t, ok)

	assert.Panics(t, func() {
		Register(New(ErrJobNotFound.Code, http.StatusNotFound, "dup", ""))
	})
}

package response

import (
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docquery/pkg/utils/errors"
	"github.com/kart-io/docquery/pkg/utils/json"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var r Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	return r
}

func TestOK(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(RequestIDKey, "req-1")

	OK(c, map[string]string{"status": "healthy"})

	assert.Equal(t, http.StatusOK, w.Code)
	r := decode(t, w)
	assert.True(t, r.IsSuccess())
	assert.Equal(t, "success", r.Message)
	assert.Equal(t, "req-1", r.RequestID)
	assert.Equal(t, map[string]any{"status": "healthy"}, r.Data)
}

func TestAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Accepted(c, gin.H{"job_id": "abc"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "accepted", decode(t, w).Message)
}

func TestFail(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"errno", errors.ErrJobNotFound, http.StatusNotFound, errors.ErrJobNotFound.Code},
		{"timeout", errors.ErrQueryTimeout.WithMessage("took too long"), http.StatusRequestTimeout, errors.ErrQueryTimeout.Code},
		{"plain error", stderrors.New("boom"), http.StatusInternalServerError, errors.ErrInternal.Code},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			Fail(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.True(t, c.IsAborted())
			r := decode(t, w)
			assert.Equal(t, tt.wantCode, r.Code)
			assert.Nil(t, r.Data)
		})
	}
}

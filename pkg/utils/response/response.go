// Package response provides the unified API response envelope.
// All endpoints answer with {code, message, data}; code 0 means success.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docquery/pkg/utils/errors"
)

// RequestIDKey 请求 ID 在 gin.Context 中的键。
const RequestIDKey = "request_id"

// Response is the unified API response structure.
type Response struct {
	// Code is the business error code (0 = success)
	Code int `json:"code"`

	// Message is a human-readable message
	Message string `json:"message"`

	// Data contains the response payload (nil for errors)
	Data any `json:"data,omitempty"`

	// RequestID is the unique request identifier for tracing
	RequestID string `json:"request_id,omitempty"`
}

// Success creates a successful response with data.
func Success(data any) *Response {
	return &Response{Code: 0, Message: "success", Data: data}
}

// SuccessWithMessage creates a successful response with custom message.
func SuccessWithMessage(message string, data any) *Response {
	return &Response{Code: 0, Message: message, Data: data}
}

// Err creates an error response from an Errno.
func Err(e *errors.Errno) *Response {
	if e == nil {
		return Success(nil)
	}
	return &Response{Code: e.Code, Message: e.MessageEN}
}

// WithData attaches a payload, used by errors that carry details.
func (r *Response) WithData(data any) *Response {
	r.Data = data
	return r
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Code == 0
}

// JSON writes r with the given HTTP status.
func JSON(c *gin.Context, status int, r *Response) {
	if id, ok := c.Get(RequestIDKey); ok {
		if s, ok := id.(string); ok {
			r.RequestID = s
		}
	}
	c.JSON(status, r)
}

// OK writes a 200 success response.
func OK(c *gin.Context, data any) {
	JSON(c, http.StatusOK, Success(data))
}

// Accepted writes a 202 success response.
func Accepted(c *gin.Context, data any) {
	JSON(c, http.StatusAccepted, SuccessWithMessage("accepted", data))
}

// Fail writes err with the status registered for its code and aborts the chain.
func Fail(c *gin.Context, err error) {
	e := errors.FromError(err)
	JSON(c, e.HTTPStatus(), Err(e))
	c.Abort()
}

package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shiyuan-lin/carpool-api/services"
)

// Envelope is the response shape shared by every endpoint:
// {code, message, data}
type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// RespondOK writes a 200 envelope
func RespondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Code: http.StatusOK, Message: message, Data: data})
}

// RespondCreated writes a 201 envelope
func RespondCreated(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Code: http.StatusCreated, Message: message, Data: data})
}

// RespondError writes an error envelope. Typed service errors carry their
// own HTTP status; anything else is reported as a 500.
func RespondError(c *gin.Context, err error) {
	if svcErr, ok := services.AsError(err); ok {
		c.JSON(svcErr.HTTPStatus(), Envelope{Code: svcErr.HTTPStatus(), Message: svcErr.Message, Data: nil})
		return
	}
	c.JSON(http.StatusInternalServerError, Envelope{
		Code:    http.StatusInternalServerError,
		Message: "internal server error",
		Data:    nil,
	})
}

// RespondValidation writes a 400 envelope for malformed request bodies
func RespondValidation(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Envelope{Code: http.StatusBadRequest, Message: message, Data: nil})
}

// RespondUnauthorized writes a 401 envelope
func RespondUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, Envelope{Code: http.StatusUnauthorized, Message: message, Data: nil})
}

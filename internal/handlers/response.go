package handlers

import (
  "net/http"
  "github.com/gin-gonic/gin"
)

// APIError is the wire shape of every non-2xx response. Code is one of the
// stable machine-readable classes (invalid_input, not_found, conflict,
// quota_exceeded, feature_disabled, unauthorized, internal); Message is for
// humans and may change.
type APIError struct {
  Message     string	`json:"message"`
  Code	      string	`json:"code,omitempty"`
}

type ErrorEnvelope struct {
  Error	      APIError	`json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
  msg := "unknown error"
  if err != nil {
    msg = err.Error()
  }
  c.JSON(status, ErrorEnvelope{
    Error: APIError{
      Message: msg,
      Code:    code,
    },
  })
}

func RespondOK(c *gin.Context, payload any) {
  c.JSON(http.StatusOK, payload)
}

package util

import (
	"fmt"
	"net/http"
)

// Error carries a detailed message for the log and a simple one for users.
type Error struct {
	LogMsg     string
	SimpleMsg  string
	Response   string
	URL        string
	HTTPStatus int
}

func (e Error) Error() string {
	if e.SimpleMsg != "" {
		return e.SimpleMsg
	}
	return e.LogMsg
}

// Log writes the detailed message and returns the error
func (e Error) Log(ctx LogContext) error {
	Logger(ctx).Error(e.LogMsg, "url", e.URL, "status", e.HTTPStatus, "response", e.Response)
	return e
}

// HTTPErr is an error with an HTTP status
type HTTPErr struct {
	Status  int
	Message string
}

func (err HTTPErr) Error() string {
	return fmt.Sprintf("%d: %s", err.Status, err.Message)
}

// HTTPError writes an error response and audits it
func HTTPError(request *http.Request, writer http.ResponseWriter, ctx LogContext, message string, status int) {
	severity := WARNING
	if status >= http.StatusInternalServerError {
		severity = ERROR
	}
	LogAudit(ctx, LogAuditInput{
		Actor:    request.RemoteAddr,
		Action:   request.Method,
		Actee:    request.URL.Path,
		Message:  fmt.Sprintf("%d: %s", status, message),
		Severity: severity,
	})
	http.Error(writer, message, status)
}

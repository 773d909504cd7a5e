package http

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentq/internal/queue"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps queue error codes to HTTP statuses.
func statusFor(code queue.Code) int {
	switch code {
	case queue.CodeInvalidInput:
		return http.StatusBadRequest
	case queue.CodeInvalidStatus:
		return http.StatusConflict
	case queue.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// handleError renders store errors with their stable code and echo errors
// with a code derived from the HTTP status.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		body   ErrorResponse
	)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		body = ErrorResponse{Code: codeForStatus(status), Message: fmt.Sprint(he.Message)}
	} else {
		code := queue.CodeOf(err)
		status = statusFor(code)
		body = ErrorResponse{Code: string(code), Message: err.Error()}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(c.Request().Context(), "request failed", zap.Error(err))
		body.Message = "internal error"
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.Warn(c.Request().Context(), "writing error response failed", zap.Error(err))
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return string(queue.CodeInvalidInput)
	case http.StatusConflict:
		return string(queue.CodeInvalidStatus)
	case http.StatusNotFound:
		return string(queue.CodeNotFound)
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	default:
		if status < http.StatusInternalServerError {
			return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
		}
		return string(queue.CodeInternal)
	}
}

// requestValidator adapts validator/v10 to echo.Validator.
type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{v: v}
}

// Validate reports the first failing field as a 400.
func (rv *requestValidator) Validate(i interface{}) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("field %q failed %q validation", fe.Field(), fe.Tag()))
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

// bind decodes and validates the request body into req.
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return c.Validate(req)
}

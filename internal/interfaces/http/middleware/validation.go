package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/invoiceflow/backend/internal/interfaces/http/dto"
)

var setupValidatorOnce sync.Once

// SetupValidator makes validation errors report JSON (or form) field names
func SetupValidator() {
	setupValidatorOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
			}
			return name
		})
	})
}

// ValidationDetails converts a binding error into per-field details.
// Errors that are not field validation failures yield nil.
func ValidationDetails(err error) []dto.ValidationDetail {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make([]dto.ValidationDetail, 0, len(verrs))
	for _, e := range verrs {
		details = append(details, dto.ValidationDetail{
			Field:   e.Field(),
			Message: getValidationMessage(e),
		})
	}
	return details
}

// HandleValidationError aborts with a 400 VALIDATION_ERROR response for a binding error
func HandleValidationError(c *gin.Context, err error) {
	message := "Request validation failed"
	details := ValidationDetails(err)
	if details == nil {
		message = "Invalid request body: " + err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.NewValidationErrorResponse(message, GetRequestID(c), details))
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		if e.Kind() == reflect.String || e.Kind() == reflect.Slice {
			return "Must contain at least " + e.Param() + " items or characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String || e.Kind() == reflect.Slice {
			return "Must contain at most " + e.Param() + " items or characters"
		}
		return "Must be at most " + e.Param()
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "dive":
		return "Contains an invalid element"
	default:
		return "Invalid value"
	}
}

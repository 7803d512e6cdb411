package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	inErrors "github.com/Alturino/foodorder/internal/errors"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Get returns the shared validator. Field names in errors are the json names.
func Get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
		if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
			panic(fmt.Sprintf("failed registering notblank validation with error=%s", err.Error()))
		}
		validate = v
	})
	return validate
}

// Struct validates v and reports every failing field, in declaration order.
func Struct(v any) error {
	err := Get().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return inErrors.Wrap(inErrors.CodeValidationFailed, err, "validation failed")
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fieldErr := range fieldErrs {
		fields = append(fields, fieldErr.Field())
	}
	return inErrors.ValidationFailed(fields...)
}

// DecodeJSON decodes the request body into dest and validates it.
func DecodeJSON(r *http.Request, dest any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dest); err != nil {
		return inErrors.Wrap(inErrors.CodeValidationFailed, err, "invalid request body")
	}
	return Struct(dest)
}

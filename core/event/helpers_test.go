package event_test

import (
	validatorlib "github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/ekipa/core"
)

func isPermissionError(err error) bool {
	return core.IsPermissionDenied(err)
}

func isValidationError(err error) bool {
	switch errors.Cause(err).(type) {
	case *core.ValidationError, validatorlib.ValidationErrors:
		return true
	}
	return false
}

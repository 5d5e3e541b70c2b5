package routes

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/daoledger/daoledger/internal/apperr"
	"github.com/daoledger/daoledger/internal/registry"
	"github.com/daoledger/daoledger/internal/state"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errValidate  error
)

func initValidator() (*validator.Validate, error) {
	vld := validator.New(validator.WithRequiredStructEnabled())

	// report json names so messages match the request body
	vld.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := vld.RegisterValidation("account_id", func(fl validator.FieldLevel) bool {
		return registry.ValidateID(fl.Field().String()) == nil
	}); err != nil {
		return nil, fmt.Errorf("register account_id: %w", err)
	}
	if err := vld.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		_, ok := state.ParseRole(fl.Field().String())
		return ok
	}); err != nil {
		return nil, fmt.Errorf("register role: %w", err)
	}
	return vld, nil
}

func validateStruct(payload any) error {
	validateOnce.Do(func() {
		validate, errValidate = initValidator()
	})
	if errValidate != nil {
		return fmt.Errorf("validator init: %w", errValidate)
	}

	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return apperr.Wrap(apperr.CodeInvalidArgument, err, "invalid request")
	}
	return fieldError(fields[0])
}

func fieldError(fe validator.FieldError) error {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apperr.Newf(apperr.CodeMissingField, "%s is required", field)
	case "account_id":
		return apperr.Newf(apperr.CodeInvalidIdentity, "%s: %q is not a valid account id", field, fe.Value())
	case "role":
		return apperr.Newf(apperr.CodeInvalidRole, "%s: unknown role %q", field, fe.Value())
	}
	return apperr.Newf(apperr.CodeInvalidArgument, "%s failed %s", field, fe.Tag())
}

// bind decodes the request body into out and checks its validate tags.
func bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, err, "malformed request body")
	}
	return validateStruct(out)
}

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/ahmetk3436/duochat/internal/errs"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

func errorJSON(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   true,
		"message": message,
	})
}

// respondError maps the error taxonomy onto HTTP statuses. fallback is the
// message used for persistence failures, whose details stay in the log.
func respondError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return errorJSON(c, fiber.StatusNotFound, "Conversation not found")
	case errors.Is(err, errs.ErrInvalidArgument):
		return errorJSON(c, fiber.StatusBadRequest, strings.TrimPrefix(err.Error(), errs.ErrInvalidArgument.Error()+": "))
	case errs.IsBackend(err):
		slog.Error(fallback, "path", c.Path(), "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, err.Error())
	default:
		slog.Error(fallback, "path", c.Path(), "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, fallback)
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bind parses the body into dst and runs struct validation.
func bind(c *fiber.Ctx, v *validator.Validate, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return errs.Invalid("Invalid request body")
	}
	if err := v.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errs.Invalid("%s", describeValidation(verrs[0]))
		}
		return errs.Invalid("%s", err.Error())
	}
	return nil
}

func describeValidation(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

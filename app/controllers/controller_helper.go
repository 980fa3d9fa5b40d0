package controllers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SchoolPay/internal/pkg/apperror"
)

var validate = validator.New()

var statusByKind = map[apperror.Kind]int{
	apperror.KindValidation:      fiber.StatusUnprocessableEntity,
	apperror.KindConflict:        fiber.StatusConflict,
	apperror.KindNotAllowed:      fiber.StatusForbidden,
	apperror.KindRetryNotAllowed: fiber.StatusConflict,
	apperror.KindNotFound:        fiber.StatusNotFound,
	apperror.KindGateway:         fiber.StatusBadGateway,
	apperror.KindInternal:        fiber.StatusInternalServerError,
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	if s, ok := statusByKind[apperror.KindOf(err)]; ok {
		return s
	}
	return fiber.StatusInternalServerError
}

// respondError writes the JSON error body. Internal errors are logged and
// hidden from the caller.
func respondError(c *fiber.Ctx, err error) error {
	var ae *apperror.Error
	if !errors.As(err, &ae) {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   string(apperror.KindInternal),
			"message": "internal server error",
		})
	}
	status := StatusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   string(ae.Kind),
		"code":    ae.Code,
		"message": ae.Message,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}

func forbidden(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "not allowed to access this resource"})
}

// parseIDParam reads a positive numeric route parameter.
func parseIDParam(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// bindJSON parses and validates the request body.
func bindJSON(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperror.Validation("InvalidRequest", "malformed JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, strings.ToLower(fe.Field())+" ("+fe.Tag()+")")
			}
			return apperror.Validation("InvalidRequest", "invalid fields: "+strings.Join(fields, ", "))
		}
		return apperror.Validation("InvalidRequest", err.Error())
	}
	return nil
}

const dateLayout = "2006-01-02"

// parseDate reads a civil date in UTC.
func parseDate(field, s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, apperror.Validation("InvalidRequest", field+" must be a YYYY-MM-DD date")
	}
	return t, nil
}

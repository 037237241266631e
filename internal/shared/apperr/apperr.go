package apperr

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrAuth       = errors.New("authentication failed")
	ErrNotFound   = errors.New("not found")
	ErrStorage    = errors.New("storage failure")
	ErrTracking   = errors.New("tracking failure")

	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", ErrAuth)
	ErrUsernameTaken      = fmt.Errorf("%w: username already taken", ErrAuth)
)

// ValidationError reports a single offending input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Storage wraps a driver error so callers can match ErrStorage while the
// cause stays inspectable.
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func Tracking(msg string) error {
	return fmt.Errorf("%w: %s", ErrTracking, msg)
}

func HTTPStatus(err error) int {
	var fe *fiber.Error
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrUsernameTaken):
		return fiber.StatusConflict
	case errors.Is(err, ErrAuth):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrTracking):
		return fiber.StatusConflict
	case errors.Is(err, ErrStorage):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// Fiber converts err into a *fiber.Error. Validation and auth messages are
// shown to the client; storage and unexpected failures are logged and hidden.
func Fiber(err error) error {
	status := HTTPStatus(err)
	switch status {
	case fiber.StatusServiceUnavailable:
		log.Printf("storage error: %v", err)
		return fiber.NewError(status, "storage unavailable")
	case fiber.StatusInternalServerError:
		log.Printf("internal error: %v", err)
		return fiber.NewError(status, "internal error")
	}
	return fiber.NewError(status, err.Error())
}

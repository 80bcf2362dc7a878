package serverutils

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

// StatusCoder is implemented by errors that know their HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// ErrorHandlerMiddleware converts handler errors into the error envelope.
// Unknown errors become a generic 500 so internals never leak.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var sc StatusCoder
		if errors.As(err, &sc) {
			return ctx.Status(sc.StatusCode()).JSON(ErrorResponse(sc.StatusCode(), err.Error()))
		}
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return ctx.Status(fe.Code).JSON(ErrorResponse(fe.Code, fe.Message))
		}

		log.Printf("[ERROR] %s %s: %v", ctx.Method(), ctx.Path(), err)
		return ctx.Status(fiber.StatusInternalServerError).
			JSON(ErrorResponse(fiber.StatusInternalServerError, "Internal server error"))
	}
}

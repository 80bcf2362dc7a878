package serverutils

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type conflictErr struct{}

func (conflictErr) Error() string   { return "session busy" }
func (conflictErr) StatusCode() int { return fiber.StatusConflict }

func newApp(handler fiber.Handler) *fiber.App {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware())
	app.Get("/", handler)
	return app
}

func TestErrorHandlerMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    int
		message string
	}{
		{"status coder", conflictErr{}, 409, "session busy"},
		{"wrapped status coder", errors.Join(errors.New("ctx"), conflictErr{}), 409, ""},
		{"fiber error", fiber.NewError(fiber.StatusBadRequest, "bad body"), 400, "bad body"},
		{"unknown", errors.New("db password wrong"), 500, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(func(*fiber.Ctx) error { return tt.err })
			resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)

			var body BaseResponse[any]
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.code, body.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, body.Message)
			}
		})
	}
}

type sample struct {
	Query string `validate:"required"`
	Role  string `validate:"oneof=student teacher"`
}

func TestValidateRequest(t *testing.T) {
	assert.NoError(t, ValidateRequest(sample{Query: "q", Role: "student"}))

	err := ValidateRequest(sample{Role: "admin"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "required", verr.Fields["query"])
	assert.Equal(t, "oneof=student teacher", verr.Fields["role"])
	assert.Equal(t, 400, verr.StatusCode())
}

func TestJwtMiddleware(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	app := fiber.New()
	app.Get("/", JwtMiddleware, func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	})

	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{"missing", "", 401},
		{"garbage", "Bearer nope", 401},
		{"no user id", "Bearer " + sign(jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}), 401},
		{"valid", "Bearer " + sign(jwt.MapClaims{"user_id": "u1", "exp": time.Now().Add(time.Hour).Unix()}), 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}
}

package controller

import (
	"edu-chatbot-be/internal/dto"
	"edu-chatbot-be/internal/pkg/serverutils"
	"edu-chatbot-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChatbotController interface {
	RegisterRoutes(r fiber.Router, authMiddleware fiber.Handler)
	SendChat(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
}

type chatbotController struct {
	chatbotService service.IChatbotService
}

func NewChatbotController(chatbotService service.IChatbotService) IChatbotController {
	return &chatbotController{
		chatbotService: chatbotService,
	}
}

func (c *chatbotController) RegisterRoutes(r fiber.Router, authMiddleware fiber.Handler) {
	h := r.Group("/chat/v1")
	h.Get("/health", c.Health)
	h.Post("/send", authMiddleware, c.SendChat)
}

// SendChat runs one conversational turn
// @Summary Send a chat message
// @Tags Chatbot
// @Security BearerAuth
// @Accept json
// @Produce json
// @Success 200 {object} dto.SendChatResponse
// @Router /api/chat/v1/send [post]
func (c *chatbotController) SendChat(ctx *fiber.Ctx) error {
	var req dto.SendChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(&req); err != nil {
		return err
	}

	// With auth enabled the token's user must own the turn.
	if userID, ok := ctx.Locals("user_id").(string); ok && userID != req.UserID {
		return service.ErrForbidden
	}

	res, err := c.chatbotService.SendChat(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success send chat", res))
}

func (c *chatbotController) Health(ctx *fiber.Ctx) error {
	res := c.chatbotService.Health(ctx.UserContext())
	status := fiber.StatusOK
	if res.Status != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return ctx.Status(status).JSON(serverutils.SuccessResponse("Health", res))
}

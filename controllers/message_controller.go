package controllers

import (
	"net/http"
	"time"

	"helpnet/models"
	"helpnet/services"
	"helpnet/utils"

	"github.com/gin-gonic/gin"
)

type MessageController struct {
	messageService *services.MessageService
}

func NewMessageController(messageService *services.MessageService) *MessageController {
	return &MessageController{
		messageService: messageService,
	}
}

// SendMessage appends a message to the emergency's thread.
func (mc *MessageController) SendMessage(c *gin.Context) {
	userID := utils.GetUserID(c)
	emergencyID := c.Param("emergencyId")

	var req models.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", nil)
		return
	}

	view, err := mc.messageService.SendMessage(c.Request.Context(), userID, emergencyID, req)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.CreatedResponse(c, "Message sent successfully", view)
}

// GetMessages returns the thread, newest first, optionally before a cursor.
func (mc *MessageController) GetMessages(c *gin.Context) {
	userID := utils.GetUserID(c)
	emergencyID := c.Param("emergencyId")
	limit := parseLimit(c, 50, 200)

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, utils.ErrCodeValidation, "before must be an RFC3339 timestamp", nil)
			return
		}
		before = &parsed
	}

	views, err := mc.messageService.GetMessages(c.Request.Context(), userID, emergencyID, limit, before)
	if err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Messages retrieved successfully", views)
}

// DeleteMessage removes the caller's own message.
func (mc *MessageController) DeleteMessage(c *gin.Context) {
	userID := utils.GetUserID(c)
	emergencyID := c.Param("emergencyId")
	messageID := c.Param("messageId")

	if err := mc.messageService.DeleteMessage(c.Request.Context(), userID, emergencyID, messageID); err != nil {
		utils.HandleServiceError(c, err)
		return
	}

	utils.SuccessResponse(c, "Message deleted successfully", nil)
}

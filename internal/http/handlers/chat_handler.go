package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/refermarket/referral-backend/internal/dto"
	"github.com/refermarket/referral-backend/internal/http/handlers/common"
	"github.com/refermarket/referral-backend/internal/service"
)

// ChatHandler обслуживает анонимные чаты между соискателем и реферером.
type ChatHandler struct {
	chats *service.ChatService
}

// NewChatHandler создаёт новый хэндлер.
func NewChatHandler(chats *service.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// GetRoom обрабатывает GET /chats/:roomId.
func (h *ChatHandler) GetRoom(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	roomID, err := common.ParseUUIDParam(c, "roomId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	room, err := h.chats.GetRoom(c.Request.Context(), roomID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.ChatRoomResponse{ChatRoom: room, MyRole: room.RoleOf(userID)})
}

// GetRoomByReferral обрабатывает GET /referrals/:id/chat.
func (h *ChatHandler) GetRoomByReferral(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	referralID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	room, err := h.chats.GetRoomByReferral(c.Request.Context(), referralID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.ChatRoomResponse{ChatRoom: room, MyRole: room.RoleOf(userID)})
}

// SendMessage обрабатывает POST /chats/:roomId/messages.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	roomID, err := common.ParseUUIDParam(c, "roomId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "текст сообщения обязателен")
		return
	}

	message, err := h.chats.SendMessage(c.Request.Context(), roomID, userID, req.Text)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, message)
}

// ListMessages обрабатывает GET /chats/:roomId/messages.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	roomID, err := common.ParseUUIDParam(c, "roomId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)

	messages, err := h.chats.ListMessages(c.Request.Context(), roomID, userID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.MessageListResponse{
		Messages: messages,
		RoomID:   roomID,
	})
}

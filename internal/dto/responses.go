package dto

import (
	"github.com/google/uuid"

	"github.com/refermarket/referral-backend/internal/models"
)

// ReferralListResponse represents a paginated list of referral requests
type ReferralListResponse struct {
	Referrals []models.ReferralRequest `json:"referrals"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
}

// TopUpProofResponse represents the result of a proof-backed top up
type TopUpProofResponse struct {
	Wallet   *models.Wallet `json:"wallet"`
	ProofRef string         `json:"proof_ref"`
}

// ChatRoomResponse represents a chat room with its counterpart role
type ChatRoomResponse struct {
	*models.ChatRoom
	MyRole string `json:"my_role"`
}

// MessageListResponse represents a message page within a room
type MessageListResponse struct {
	Messages []models.ChatMessage `json:"messages"`
	RoomID   uuid.UUID            `json:"room_id"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

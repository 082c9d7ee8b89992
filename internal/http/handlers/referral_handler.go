package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/refermarket/referral-backend/internal/dto"
	"github.com/refermarket/referral-backend/internal/http/handlers/common"
	"github.com/refermarket/referral-backend/internal/models"
	"github.com/refermarket/referral-backend/internal/service"
	"github.com/refermarket/referral-backend/internal/validation"
)

// ReferralHandler обслуживает жизненный цикл реферальных запросов.
type ReferralHandler struct {
	referrals *service.ReferralService
}

// NewReferralHandler создаёт новый хэндлер.
func NewReferralHandler(referrals *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{referrals: referrals}
}

// CreateReferral обрабатывает POST /referrals.
func (h *ReferralHandler) CreateReferral(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := validation.ValidateCompany(req.Company); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateRoleTitle(req.Role); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateSkills(req.Skills); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateDescription(req.Description); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateRewardAmount(req.Amount); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	request, err := h.referrals.RequestReferral(c.Request.Context(), service.RequestReferralInput{
		SeekerID:    userID,
		Company:     req.Company,
		Role:        req.Role,
		Skills:      req.Skills,
		Description: req.Description,
		Amount:      req.Amount,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, request)
}

// ListReferrals обрабатывает GET /referrals.
// Соискатель видит собственные запросы, реферер открытые запросы
// по своим компаниям. Параметр scope=accepted возвращает рефереру
// принятые им запросы.
func (h *ReferralHandler) ListReferrals(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	role, err := common.CurrentUserRole(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)

	var requests []models.ReferralRequest
	switch {
	case role == models.RoleReferrer && c.Query("scope") == "accepted":
		requests, err = h.referrals.ListAccepted(c.Request.Context(), userID, limit, offset)
	case role == models.RoleReferrer:
		requests, err = h.referrals.ListOpenForReferrer(c.Request.Context(), userID, limit, offset)
	default:
		requests, err = h.referrals.ListMyRequests(c.Request.Context(), userID, limit, offset)
	}
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.ReferralListResponse{
		Referrals: requests,
		Limit:     limit,
		Offset:    offset,
	})
}

// GetReferral обрабатывает GET /referrals/:id.
func (h *ReferralHandler) GetReferral(c *gin.Context) {
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

	request, err := h.referrals.GetReferral(c.Request.Context(), referralID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	if request.SeekerID != userID && (request.AcceptedBy == nil || *request.AcceptedBy != userID) {
		// Посторонний видит запрос без персональных полей соискателя
		c.JSON(http.StatusOK, gin.H{
			"id":      request.ID,
			"company": request.Company,
			"role":    request.Role,
			"skills":  request.Skills,
			"amount":  request.Amount,
			"status":  request.Status,
		})
		return
	}

	c.JSON(http.StatusOK, request)
}

// GetReferrerDisplay обрабатывает GET /referrals/:id/referrer.
// Соискатель видит принявшего реферера только в обезличенном виде.
func (h *ReferralHandler) GetReferrerDisplay(c *gin.Context) {
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

	request, err := h.referrals.GetReferral(c.Request.Context(), referralID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if request.SeekerID != userID {
		common.RespondForbidden(c, "у вас нет доступа к этому запросу")
		return
	}

	display, err := h.referrals.GetReferrerDisplay(c.Request.Context(), referralID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, display)
}

// AcceptReferral обрабатывает POST /referrals/:id/accept.
// Запрос достаётся первому рефереру, чья запись прошла. Остальные
// получают 409.
func (h *ReferralHandler) AcceptReferral(c *gin.Context) {
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

	request, err := h.referrals.AcceptReferral(c.Request.Context(), referralID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// MarkInProgress обрабатывает POST /referrals/:id/in-progress.
func (h *ReferralHandler) MarkInProgress(c *gin.Context) {
	h.advance(c, h.referrals.MarkInProgress)
}

// MarkReferred обрабатывает POST /referrals/:id/referred.
func (h *ReferralHandler) MarkReferred(c *gin.Context) {
	h.advance(c, h.referrals.MarkReferred)
}

// CompleteReferral обрабатывает POST /referrals/:id/complete.
// Подтверждение соискателя выплачивает вознаграждение рефереру.
func (h *ReferralHandler) CompleteReferral(c *gin.Context) {
	h.advance(c, h.referrals.CompleteReferral)
}

// CancelReferral обрабатывает POST /referrals/:id/cancel.
// Отменить можно только не принятый запрос, средства возвращаются.
func (h *ReferralHandler) CancelReferral(c *gin.Context) {
	h.advance(c, h.referrals.CancelReferral)
}

// DeclineReferral обрабатывает POST /referrals/:id/reject.
// Реферер отказывается от принятого запроса, средства возвращаются
// соискателю.
func (h *ReferralHandler) DeclineReferral(c *gin.Context) {
	h.advance(c, h.referrals.DeclineReferral)
}

func (h *ReferralHandler) advance(c *gin.Context, op func(ctx context.Context, referralID, userID uuid.UUID) (*models.ReferralRequest, error)) {
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

	request, err := op(c.Request.Context(), referralID, userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, request)
}

package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/refermarket/referral-backend/internal/logger"
	"github.com/refermarket/referral-backend/internal/models"
	"github.com/refermarket/referral-backend/internal/pkg/apperror"
	"github.com/refermarket/referral-backend/internal/repository"
	"github.com/refermarket/referral-backend/internal/service"
)

// ErrorHandler обрабатывает ошибки централизованно.
// Маскирует внутренние ошибки и возвращает понятные сообщения клиенту.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Проверяем, не был ли уже отправлен ответ
		if c.Writer.Written() {
			return
		}

		if len(c.Errors) > 0 {
			err := c.Errors.Last()

			statusCode, message := classifyError(err.Err)

			logger.Log.WithFields(logrus.Fields{
				"error":  err.Error(),
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
				"status": statusCode,
			}).Error("Request error")

			c.JSON(statusCode, gin.H{"error": message})
		}
	}
}

// classifyError сопоставляет ошибку слоя сервисов со статус-кодом и сообщением.
func classifyError(err error) (int, string) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus, appErr.Message
	}

	switch {
	case errors.Is(err, service.ErrReferralTaken),
		errors.Is(err, repository.ErrReferralNotPending):
		return http.StatusConflict, "запрос уже принят другим реферером"
	case errors.Is(err, repository.ErrEscrowAlreadyProcessed):
		return http.StatusConflict, "резерв по этому запросу уже обработан"
	case errors.Is(err, service.ErrNotEligible):
		return http.StatusForbidden, "вы не можете принять этот запрос"
	case errors.Is(err, models.ErrInsufficientFunds):
		return http.StatusBadRequest, "недостаточно средств на кошельке"
	case errors.Is(err, models.ErrInvalidAmount):
		return http.StatusBadRequest, "сумма должна быть положительной"
	case errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound, "пользователь не найден"
	case errors.Is(err, repository.ErrReferralNotFound):
		return http.StatusNotFound, "запрос на реферал не найден"
	case errors.Is(err, repository.ErrWalletNotFound):
		return http.StatusNotFound, "кошелёк не найден"
	case errors.Is(err, repository.ErrEscrowNotFound):
		return http.StatusNotFound, "резерв не найден"
	case errors.Is(err, repository.ErrChatRoomNotFound):
		return http.StatusNotFound, "чат не найден"
	case errors.Is(err, repository.ErrNotificationNotFound):
		return http.StatusNotFound, "уведомление не найдено"
	}

	// Если ошибка содержит понятное сообщение, используем его,
	// но только если это не внутренняя ошибка.
	errStr := err.Error()
	if errStr != "" && !containsInternalKeywords(errStr) {
		statusCode := http.StatusBadRequest
		if contains(errStr, "нет прав") || contains(errStr, "нет доступа") || contains(errStr, "нельзя") {
			statusCode = http.StatusForbidden
		} else if contains(errStr, "не найден") {
			statusCode = http.StatusNotFound
		}
		return statusCode, errStr
	}

	return http.StatusInternalServerError, "внутренняя ошибка сервера"
}

// containsInternalKeywords проверяет, содержит ли строка ключевые слова внутренних ошибок.
func containsInternalKeywords(s string) bool {
	keywords := []string{
		"sql:",
		"database",
		"connection",
		"timeout",
		"internal",
		"panic",
		"runtime",
	}

	for _, keyword := range keywords {
		if contains(s, keyword) {
			return true
		}
	}
	return false
}

// contains проверяет, содержит ли строка подстроку (case-insensitive).
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

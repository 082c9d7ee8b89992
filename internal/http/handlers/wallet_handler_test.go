package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/refermarket/referral-backend/internal/http/middleware"
)

func TestWalletHandler_GetWallet_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &WalletHandler{}
	r.GET("/wallet", handler.GetWallet)

	req, _ := http.NewRequest("GET", "/wallet", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWalletHandler_TopUp_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &WalletHandler{}
	r.POST("/wallet/topup", handler.TopUp)

	req, _ := http.NewRequest("POST", "/wallet/topup", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWalletHandler_TopUp_NegativeAmount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &WalletHandler{}
	r.POST("/wallet/topup", func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, uuid.New())
		handler.TopUp(c)
	})

	req, _ := http.NewRequest("POST", "/wallet/topup", strings.NewReader(`{"amount": -5}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletHandler_TopUpWithProof_MissingFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &WalletHandler{}
	r.POST("/wallet/topup/proof", func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, uuid.New())
		handler.TopUpWithProof(c)
	})

	form := strings.NewReader("amount=100")
	req, _ := http.NewRequest("POST", "/wallet/topup/proof", form)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletHandler_GetEscrow_InvalidReferralID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &WalletHandler{}
	r.GET("/wallet/escrows/:referralId", func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, uuid.New())
		handler.GetEscrow(c)
	})

	req, _ := http.NewRequest("GET", "/wallet/escrows/not-a-uuid", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWalletHandler_Withdraw_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &WalletHandler{}
	r.POST("/wallet/withdraw", handler.Withdraw)

	req, _ := http.NewRequest("POST", "/wallet/withdraw", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

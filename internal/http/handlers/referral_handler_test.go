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

func TestReferralHandler_CreateReferral_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ReferralHandler{}
	r.POST("/referrals", handler.CreateReferral)

	req, _ := http.NewRequest("POST", "/referrals", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReferralHandler_CreateReferral_MissingCompany(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ReferralHandler{}
	r.POST("/referrals", func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, uuid.New())
		handler.CreateReferral(c)
	})

	body := strings.NewReader(`{"role": "Backend Engineer", "amount": 100}`)
	req, _ := http.NewRequest("POST", "/referrals", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReferralHandler_AcceptReferral_InvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ReferralHandler{}
	r.POST("/referrals/:id/accept", func(c *gin.Context) {
		c.Set(middleware.ContextUserIDKey, uuid.New())
		handler.AcceptReferral(c)
	})

	req, _ := http.NewRequest("POST", "/referrals/not-a-uuid/accept", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReferralHandler_ListReferrals_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ReferralHandler{}
	r.GET("/referrals", handler.ListReferrals)

	req, _ := http.NewRequest("GET", "/referrals", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReferralHandler_CompleteReferral_Unauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := &ReferralHandler{}
	r.POST("/referrals/:id/complete", handler.CompleteReferral)

	req, _ := http.NewRequest("POST", "/referrals/"+uuid.NewString()+"/complete", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

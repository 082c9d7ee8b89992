package handlers

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"

	"github.com/refermarket/referral-backend/internal/dto"
	"github.com/refermarket/referral-backend/internal/http/handlers/common"
	"github.com/refermarket/referral-backend/internal/service"
	"github.com/refermarket/referral-backend/internal/storage"
)

// Разрешённые типы файлов подтверждения оплаты
var allowedProofMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// Разрешённые расширения файлов подтверждения
var allowedProofExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".pdf":  true,
}

// WalletHandler обслуживает маршруты кошелька и escrow.
type WalletHandler struct {
	wallet *service.WalletService
	proofs *storage.ProofStorage
}

// NewWalletHandler создаёт новый хэндлер.
func NewWalletHandler(wallet *service.WalletService, proofs *storage.ProofStorage) *WalletHandler {
	return &WalletHandler{wallet: wallet, proofs: proofs}
}

// GetWallet обрабатывает GET /wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	wallet, err := h.wallet.GetWallet(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// TopUp обрабатывает POST /wallet/topup.
func (h *WalletHandler) TopUp(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "сумма должна быть положительной")
		return
	}

	wallet, err := h.wallet.TopUp(c.Request.Context(), userID, req.Amount, "")
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// TopUpWithProof обрабатывает POST /wallet/topup/proof.
// Принимает multipart: поле file с подтверждением платежа и поле amount.
// Файл проверяется по магическим байтам, зачисление идёт тем же путём,
// что и обычное пополнение.
func (h *WalletHandler) TopUpWithProof(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	amount, err := strconv.ParseFloat(c.PostForm("amount"), 64)
	if err != nil || amount <= 0 {
		common.RespondBadRequest(c, "сумма должна быть положительной")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		common.RespondBadRequest(c, "поле file обязательно")
		return
	}

	if file.Size == 0 {
		common.RespondBadRequest(c, "файл не может быть пустым")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedProofExtensions[ext] {
		common.RespondBadRequest(c, "неподдерживаемый формат файла. Разрешены: .jpg, .jpeg, .png, .webp, .pdf")
		return
	}

	src, err := file.Open()
	if err != nil {
		_ = c.Error(err)
		return
	}
	defer src.Close()

	// Читаем первые 512 байт для проверки магических байтов
	buffer := make([]byte, 512)
	n, err := src.Read(buffer)
	if err != nil && err != io.EOF {
		common.RespondBadRequest(c, "не удалось прочитать файл")
		return
	}

	kind, err := filetype.Match(buffer[:n])
	if err != nil || kind == filetype.Unknown {
		common.RespondBadRequest(c, "не удалось определить тип файла")
		return
	}

	if !allowedProofMimeTypes[kind.MIME.Value] {
		common.RespondBadRequest(c, fmt.Sprintf("неподдерживаемый тип файла (%s)", kind.MIME.Value))
		return
	}

	// Расширение должно соответствовать реальному типу файла.
	// .jpg и .jpeg считаются эквивалентными.
	expectedExt := "." + kind.Extension
	if ext != expectedExt && !(ext == ".jpg" && expectedExt == ".jpeg") && !(ext == ".jpeg" && expectedExt == ".jpg") {
		common.RespondBadRequest(c, fmt.Sprintf("расширение файла (%s) не соответствует реальному типу (%s)", ext, expectedExt))
		return
	}

	if _, err := src.Seek(0, io.SeekStart); err != nil {
		_ = c.Error(err)
		return
	}

	proofRef, _, err := h.proofs.Save(c.Request.Context(), userID, file.Filename, src)
	if err != nil {
		_ = c.Error(err)
		return
	}

	wallet, err := h.wallet.TopUp(c.Request.Context(), userID, amount, proofRef)
	if err != nil {
		// Зачисление не прошло, файл подтверждения больше не нужен
		_ = h.proofs.Delete(c.Request.Context(), proofRef)
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.TopUpProofResponse{
		Wallet:   wallet,
		ProofRef: proofRef,
	})
}

// Withdraw обрабатывает POST /wallet/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "сумма должна быть положительной")
		return
	}

	wallet, err := h.wallet.Withdraw(c.Request.Context(), userID, req.Amount)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// GetEscrow обрабатывает GET /wallet/escrows/:referralId.
func (h *WalletHandler) GetEscrow(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	referralID, err := common.ParseUUIDParam(c, "referralId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	escrow, err := h.wallet.GetEscrow(c.Request.Context(), referralID)
	if err != nil {
		_ = c.Error(err)
		return
	}

	// Резерв видят только его стороны
	if escrow.SeekerID != userID && (escrow.ReferrerID == nil || *escrow.ReferrerID != userID) {
		common.RespondForbidden(c, "у вас нет доступа к этому резерву")
		return
	}

	c.JSON(http.StatusOK, escrow)
}

// ListTransactions обрабатывает GET /wallet/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)

	transactions, err := h.wallet.ListTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

package dto

// CreateReferralRequest represents the request to create a referral request
type CreateReferralRequest struct {
	Company     string   `json:"company" binding:"required"`
	Role        string   `json:"role" binding:"required"`
	Skills      []string `json:"skills"`
	Description string   `json:"description"`
	Amount      float64  `json:"amount" binding:"required,gt=0"`
}

// AmountRequest represents a wallet operation carrying a single amount
type AmountRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// SendMessageRequest represents the request to send a chat message
type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// UpdateCompaniesRequest represents the request to change a referrer's companies
type UpdateCompaniesRequest struct {
	Companies []string `json:"companies" binding:"required"`
}

package models

import (
	"time"

	"coai-backend/core/marketplace"
)

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Store     string `json:"store"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse represents API error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Code      int    `json:"code,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Field     string `json:"field,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// APIResponse represents a generic API response
type APIResponse struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) *APIResponse {
	return &APIResponse{
		Success: true,
		Data:    data,
	}
}

// NewSuccessResponseWithMeta creates a success response with metadata
func NewSuccessResponseWithMeta(data any, meta map[string]any) *APIResponse {
	return &APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(msg string, code int) *APIResponse {
	return &APIResponse{
		Success: false,
		Error: &ErrorResponse{
			Error:     msg,
			Message:   msg,
			Code:      code,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// NewKindErrorResponse creates an error response for a marketplace error,
// carrying its kind and offending field.
func NewKindErrorResponse(err *marketplace.Error, code int) *APIResponse {
	resp := NewErrorResponse(err.Message, code)
	resp.Error.Kind = string(err.Kind)
	resp.Error.Field = err.Field
	return resp
}

// ChallengeRequest asks for a nonce to sign.
type ChallengeRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// VerifyRequest carries a signed challenge.
type VerifyRequest struct {
	WalletAddress string `json:"wallet_address"`
	Message       string `json:"message"`
	Signature     string `json:"signature"`
}

// LoginResponse is returned after a successful verification.
type LoginResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      marketplace.User `json:"user"`
}

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Title             string                        `json:"title"`
	Description       string                        `json:"description"`
	Category          string                        `json:"category"`
	RequiredSkills    []string                      `json:"required_skills"`
	Price             *marketplace.Money            `json:"price"`
	Deadline          time.Time                     `json:"deadline"`
	AIAssistanceLevel marketplace.AIAssistanceLevel `json:"ai_assistance_level"`
	Draft             bool                          `json:"draft"`
	Metadata          marketplace.Metadata          `json:"metadata"`
}

// Input converts the request into a lifecycle input.
func (r CreateTaskRequest) Input() marketplace.CreateTaskInput {
	return marketplace.CreateTaskInput{
		Title:             r.Title,
		Description:       r.Description,
		Category:          r.Category,
		RequiredSkills:    r.RequiredSkills,
		Price:             r.Price,
		Deadline:          r.Deadline,
		AIAssistanceLevel: r.AIAssistanceLevel,
		Draft:             r.Draft,
		Metadata:          r.Metadata,
	}
}

// UpdateTaskRequest is the body of PUT /api/tasks/{id}. Absent fields are left alone.
type UpdateTaskRequest struct {
	Title             *string                        `json:"title"`
	Description       *string                        `json:"description"`
	Category          *string                        `json:"category"`
	RequiredSkills    []string                       `json:"required_skills"`
	Price             *marketplace.Money             `json:"price"`
	Deadline          *time.Time                     `json:"deadline"`
	AIAssistanceLevel *marketplace.AIAssistanceLevel `json:"ai_assistance_level"`
	Metadata          marketplace.Metadata           `json:"metadata"`
}

// Patch converts the request into a lifecycle patch.
func (r UpdateTaskRequest) Patch() marketplace.TaskPatch {
	return marketplace.TaskPatch{
		Title:             r.Title,
		Description:       r.Description,
		Category:          r.Category,
		RequiredSkills:    r.RequiredSkills,
		Price:             r.Price,
		Deadline:          r.Deadline,
		AIAssistanceLevel: r.AIAssistanceLevel,
		Metadata:          r.Metadata,
	}
}

// ApplyRequest is the body of POST /api/tasks/{id}/apply.
type ApplyRequest struct {
	Message          string             `json:"message"`
	ProposedPrice    *marketplace.Money `json:"proposed_price"`
	ProposedDeadline time.Time          `json:"proposed_deadline"`
}

// AcceptRequest is the body of POST /api/tasks/{id}/accept.
type AcceptRequest struct {
	ApplicationID string `json:"application_id"`
}

// FeesRequest asks for a fee preview.
type FeesRequest struct {
	Price             marketplace.Money             `json:"price"`
	AIAssistanceLevel marketplace.AIAssistanceLevel `json:"ai_assistance_level"`
}

// EscrowResponse pairs a deposit with its Solana Pay request.
type EscrowResponse struct {
	Transaction    marketplace.Transaction `json:"transaction"`
	PaymentRequest string                  `json:"payment_request"`
}

// BalanceResponse is the token balance of a wallet.
type BalanceResponse struct {
	WalletAddress string            `json:"wallet_address"`
	Balance       marketplace.Money `json:"balance"`
}

// SuggestionsRequest is the body of POST /api/ai/suggestions.
type SuggestionsRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	RequiredSkills []string `json:"required_skills"`
	Count          int      `json:"count"`
}

// ContributeRequest is the body of POST /api/ai/contribute/{taskId}.
type ContributeRequest struct {
	Query string `json:"query"`
}

// ProfileRequest is the body of PUT /api/users/me.
type ProfileRequest struct {
	Name   *string  `json:"name"`
	Email  *string  `json:"email"`
	Bio    *string  `json:"bio"`
	Skills []string `json:"skills"`
}

// Patch converts the request into a profile patch.
func (r ProfileRequest) Patch() marketplace.ProfilePatch {
	return marketplace.ProfilePatch{Name: r.Name, Email: r.Email, Bio: r.Bio, Skills: r.Skills}
}

package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"insurecalc-backend/models"
	"insurecalc-backend/service"
)

// CalculationHandler serves the JSON API
type CalculationHandler struct {
	calcService *service.CalculationService
}

// NewCalculationHandler creates a new calculation handler
func NewCalculationHandler(calcService *service.CalculationService) *CalculationHandler {
	return &CalculationHandler{calcService: calcService}
}

// CalculateRequest represents the request body for a calculation
type CalculateRequest struct {
	Mode          string   `json:"mode"`
	InitialAmount *float64 `json:"initialAmount"`
	Percentage    *float64 `json:"percentage"`
	FixedAmount   *float64 `json:"fixedAmount"`
	Terms         string   `json:"terms"`
	APIKey        string   `json:"apiKey"`
	RememberKey   bool     `json:"rememberKey"`
}

// CalculateResponse represents a successful calculation
type CalculateResponse struct {
	Mode            models.CalculationMode `json:"mode"`
	InitialAmount   float64                `json:"initialAmount"`
	InsuranceAmount float64                `json:"insuranceAmount"`
	PatientAmount   float64                `json:"patientAmount"`
	Explanation     string                 `json:"explanation,omitempty"`
	GeneratedCode   *models.GeneratedCode  `json:"generatedCode,omitempty"`
	HistoryEntry    *models.HistoryEntry   `json:"historyEntry,omitempty"`
}

// Calculate handles POST /api/calculate
func (h *CalculationHandler) Calculate(c *gin.Context) {
	var req CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	serviceReq := service.CalculateRequest{
		Mode: parseMode(req.Mode),
		Coverage: models.CoverageSpec{
			Percentage:  req.Percentage,
			FixedAmount: req.FixedAmount,
			Terms:       req.Terms,
		},
		APIKey:      req.APIKey,
		RememberKey: req.RememberKey,
	}
	if req.InitialAmount != nil {
		serviceReq.InitialAmount = *req.InitialAmount
	}

	result, err := h.calcService.Calculate(c.Request.Context(), serviceReq)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, CalculateResponse{
		Mode:            result.Mode,
		InitialAmount:   result.InitialAmount,
		InsuranceAmount: result.Split.InsuranceAmount,
		PatientAmount:   result.Split.PatientAmount,
		Explanation:     result.Explanation,
		GeneratedCode:   result.Code,
		HistoryEntry:    result.Entry,
	})
}

// GetHistory handles GET /api/history
func (h *CalculationHandler) GetHistory(c *gin.Context) {
	entries, err := h.calcService.History(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, entries)
}

// DeleteHistoryEntry handles DELETE /api/history/:id
func (h *CalculationHandler) DeleteHistoryEntry(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid history entry id")
		return
	}

	entries, err := h.calcService.DeleteHistoryEntry(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, entries)
}

// ClearHistory handles DELETE /api/history
func (h *CalculationHandler) ClearHistory(c *gin.Context) {
	if err := h.calcService.ClearHistory(c.Request.Context()); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, []models.HistoryEntry{})
}

// GetCredential handles GET /api/credential
func (h *CalculationHandler) GetCredential(c *gin.Context) {
	respondOK(c, http.StatusOK, h.calcService.CredentialStatus(c.Request.Context()))
}

// UpdateCredentialRequest represents the request body for PUT /api/credential
type UpdateCredentialRequest struct {
	APIKey   string `json:"apiKey"`
	Remember bool   `json:"remember"`
}

// UpdateCredential handles PUT /api/credential
func (h *CalculationHandler) UpdateCredential(c *gin.Context) {
	var req UpdateCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	if err := h.calcService.RememberAPIKey(c.Request.Context(), strings.TrimSpace(req.APIKey), req.Remember); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, h.calcService.CredentialStatus(c.Request.Context()))
}

// DeleteCredential handles DELETE /api/credential
func (h *CalculationHandler) DeleteCredential(c *gin.Context) {
	if err := h.calcService.ForgetAPIKey(c.Request.Context()); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, h.calcService.CredentialStatus(c.Request.Context()))
}

// parseMode defaults to manual, matching the form's initial selection
func parseMode(raw string) models.CalculationMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(models.ModeManual):
		return models.ModeManual
	case string(models.ModeAI):
		return models.ModeAI
	default:
		return models.CalculationMode(raw)
	}
}

package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"insurecalc-backend/models"
	"insurecalc-backend/service"
)

// PageHandler serves the HTML form
type PageHandler struct {
	calcService *service.CalculationService
}

// NewPageHandler creates a new page handler
func NewPageHandler(calcService *service.CalculationService) *PageHandler {
	return &PageHandler{calcService: calcService}
}

// formValues echoes the submitted fields back into the form
type formValues struct {
	Mode          string
	InitialAmount string
	Percentage    string
	FixedAmount   string
	Terms         string
	RememberKey   bool
}

type pageData struct {
	Form       formValues
	Error      string
	Result     *service.CalculateResult
	History    []models.HistoryEntry
	Credential service.CredentialStatus
}

// Index handles GET /
func (h *PageHandler) Index(c *gin.Context) {
	h.render(c, http.StatusOK, pageData{Form: formValues{Mode: string(models.ModeManual)}})
}

// Calculate handles POST /calculate
func (h *PageHandler) Calculate(c *gin.Context) {
	form := formValues{
		Mode:          string(parseMode(c.PostForm("mode"))),
		InitialAmount: strings.TrimSpace(c.PostForm("initialAmount")),
		Percentage:    strings.TrimSpace(c.PostForm("percentage")),
		FixedAmount:   strings.TrimSpace(c.PostForm("fixedAmount")),
		Terms:         c.PostForm("terms"),
		RememberKey:   c.PostForm("rememberKey") == "true",
	}

	initial := math.NaN()
	if v := parseOptionalFloat(form.InitialAmount); v != nil {
		initial = *v
	}

	result, err := h.calcService.Calculate(c.Request.Context(), service.CalculateRequest{
		Mode:          models.CalculationMode(form.Mode),
		InitialAmount: initial,
		Coverage: models.CoverageSpec{
			Percentage:  parseOptionalFloat(form.Percentage),
			FixedAmount: parseOptionalFloat(form.FixedAmount),
			Terms:       form.Terms,
		},
		APIKey:      c.PostForm("apiKey"),
		RememberKey: form.RememberKey,
	})
	if err != nil {
		_ = c.Error(err)
		_, message, status := service.Describe(err)
		h.render(c, status, pageData{Form: form, Error: message})
		return
	}

	h.render(c, http.StatusOK, pageData{Form: form, Result: result})
}

// DeleteHistoryEntry handles POST /history/:id/delete
func (h *PageHandler) DeleteHistoryEntry(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.render(c, http.StatusBadRequest, pageData{Error: "Invalid history entry id"})
		return
	}
	if _, err := h.calcService.DeleteHistoryEntry(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// ClearHistory handles POST /history/clear
func (h *PageHandler) ClearHistory(c *gin.Context) {
	if err := h.calcService.ClearHistory(c.Request.Context()); err != nil {
		_ = c.Error(err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// ClearCredential handles POST /credential/clear
func (h *PageHandler) ClearCredential(c *gin.Context) {
	if err := h.calcService.ForgetAPIKey(c.Request.Context()); err != nil {
		_ = c.Error(err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *PageHandler) render(c *gin.Context, status int, data pageData) {
	ctx := c.Request.Context()
	if history, err := h.calcService.History(ctx); err == nil {
		data.History = history
	}
	data.Credential = h.calcService.CredentialStatus(ctx)
	if data.Form.Mode == "" {
		data.Form.Mode = string(models.ModeManual)
	}
	c.HTML(status, "index.html", data)
}

// parseOptionalFloat returns nil for an empty field and NaN for text that is
// not a number, so validation reports it against the right field.
func parseOptionalFloat(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		v = math.NaN()
	}
	return &v
}

package http

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	rules           service.RuleService
	expenses        service.ExpenseService
	maxReceiptBytes int64
	logger          Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(rules service.RuleService, expenses service.ExpenseService, maxReceiptBytes int64, logger Logger) *Handlers {
	if maxReceiptBytes <= 0 {
		maxReceiptBytes = service.DefaultMaxReceiptBytes
	}
	return &Handlers{
		rules:           rules,
		expenses:        expenses,
		maxReceiptBytes: maxReceiptBytes,
		logger:          logger,
	}
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateRule handles POST /api/approval-rules
func (h *Handlers) CreateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	rule, err := h.rules.Create(c.Request.Context(), actorFrom(c), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: toRuleResponse(rule)})
}

// ListRules handles GET /api/approval-rules
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.rules.List(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	data := make([]RuleResponse, 0, len(rules))
	for _, r := range rules {
		data = append(data, toRuleResponse(r))
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// GetRule handles GET /api/approval-rules/:id
func (h *Handlers) GetRule(c *gin.Context) {
	rule, err := h.rules.Get(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toRuleResponse(rule)})
}

// UpdateRule handles PUT /api/approval-rules/:id
func (h *Handlers) UpdateRule(c *gin.Context) {
	var req RuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	rule, err := h.rules.Update(c.Request.Context(), actorFrom(c), c.Param("id"), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toRuleResponse(rule)})
}

// DeleteRule handles DELETE /api/approval-rules/:id
func (h *Handlers) DeleteRule(c *gin.Context) {
	if err := h.rules.Delete(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// SubmitExpense handles POST /api/expenses as JSON or multipart with a receipt file
func (h *Handlers) SubmitExpense(c *gin.Context) {
	var req SubmitExpenseRequest
	var upload *service.ReceiptUpload

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid form data"})
			return
		}
		file, err := c.FormFile("receipt")
		if err != nil && err != http.ErrMissingFile {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid receipt upload"})
			return
		}
		if file != nil {
			if upload, err = h.readUpload(file); err != nil {
				h.fail(c, err)
				return
			}
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		h.fail(c, err)
		return
	}

	exp, err := h.expenses.Submit(c.Request.Context(), actorFrom(c), service.SubmitInput{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Description: req.Description,
		Date:        date,
		Receipt:     upload,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: toExpenseResponse(exp)})
}

// readUpload reads at most one byte past the limit so the service can reject oversize files
func (h *Handlers) readUpload(file *multipart.FileHeader) (*service.ReceiptUpload, error) {
	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, h.maxReceiptBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(content)
	}
	return &service.ReceiptUpload{
		Filename:    file.Filename,
		ContentType: contentType,
		Content:     content,
	}, nil
}

// ListMyExpenses handles GET /api/expenses
func (h *Handlers) ListMyExpenses(c *gin.Context) {
	expenses, err := h.expenses.ListMine(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toExpenseResponses(expenses)})
}

// ExportMyExpenses handles GET /api/expenses/export
func (h *Handlers) ExportMyExpenses(c *gin.Context) {
	report, err := h.expenses.Export(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	c.Data(http.StatusOK, report.ContentType, report.Content)
}

// ListPending handles GET /api/expenses/pending-approval
func (h *Handlers) ListPending(c *gin.Context) {
	pending, err := h.expenses.ListPending(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toPendingResponses(pending)})
}

// GetExpense handles GET /api/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	exp, err := h.expenses.Get(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toExpenseResponse(exp)})
}

// GetHistory handles GET /api/expenses/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	records, err := h.expenses.History(c.Request.Context(), c.Param("id"), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toHistoryResponses(records)})
}

// ActOnExpense handles PUT /api/expenses/:id/approve
func (h *Handlers) ActOnExpense(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid request body"})
		return
	}

	exp, err := h.expenses.Act(c.Request.Context(), c.Param("id"), actorFrom(c), entity.Action(strings.ToLower(req.Action)), req.Comments)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: toExpenseResponse(exp)})
}

// GetReceipt handles GET /api/receipts/:expenseId
func (h *Handlers) GetReceipt(c *gin.Context) {
	file, err := h.expenses.Receipt(c.Request.Context(), c.Param("expenseId"), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

// parseDate accepts a calendar date or an RFC 3339 timestamp; empty is left for the service to reject
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation("date %q must be YYYY-MM-DD", s)
}

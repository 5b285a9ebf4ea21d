package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

type mockLogger struct{}

func (mockLogger) Info(string, ...interface{})  {}
func (mockLogger) Error(string, ...interface{}) {}

// tokenAuth maps opaque tokens straight to users
type tokenAuth map[string]*entity.User

func (a tokenAuth) Authenticate(_ context.Context, token string) (*entity.User, error) {
	if u, ok := a[token]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: unknown token", ErrUnauthenticated)
}

type mockRuleService struct {
	createFunc func(ctx context.Context, actor *entity.User, in service.RuleInput) (*entity.ApprovalRule, error)
	getFunc    func(ctx context.Context, actor *entity.User, id string) (*entity.ApprovalRule, error)
	listFunc   func(ctx context.Context, actor *entity.User) ([]*entity.ApprovalRule, error)
	updateFunc func(ctx context.Context, actor *entity.User, id string, in service.RuleInput) (*entity.ApprovalRule, error)
	deleteFunc func(ctx context.Context, actor *entity.User, id string) error
}

func (m *mockRuleService) Create(ctx context.Context, actor *entity.User, in service.RuleInput) (*entity.ApprovalRule, error) {
	return m.createFunc(ctx, actor, in)
}

func (m *mockRuleService) Get(ctx context.Context, actor *entity.User, id string) (*entity.ApprovalRule, error) {
	return m.getFunc(ctx, actor, id)
}

func (m *mockRuleService) List(ctx context.Context, actor *entity.User) ([]*entity.ApprovalRule, error) {
	return m.listFunc(ctx, actor)
}

func (m *mockRuleService) Update(ctx context.Context, actor *entity.User, id string, in service.RuleInput) (*entity.ApprovalRule, error) {
	return m.updateFunc(ctx, actor, id, in)
}

func (m *mockRuleService) Delete(ctx context.Context, actor *entity.User, id string) error {
	return m.deleteFunc(ctx, actor, id)
}

type mockExpenseService struct {
	submitFunc      func(ctx context.Context, employee *entity.User, in service.SubmitInput) (*entity.Expense, error)
	actFunc         func(ctx context.Context, expenseID string, actor *entity.User, action entity.Action, comments string) (*entity.Expense, error)
	listMineFunc    func(ctx context.Context, actor *entity.User) ([]*entity.Expense, error)
	getFunc         func(ctx context.Context, expenseID string, actor *entity.User) (*entity.Expense, error)
	historyFunc     func(ctx context.Context, expenseID string, actor *entity.User) ([]*entity.ActionHistory, error)
	receiptFunc     func(ctx context.Context, expenseID string, actor *entity.User) (*service.ReceiptFile, error)
	listPendingFunc func(ctx context.Context, approver *entity.User) ([]*service.PendingExpense, error)
	exportFunc      func(ctx context.Context, actor *entity.User) (*service.Report, error)
}

func (m *mockExpenseService) Submit(ctx context.Context, employee *entity.User, in service.SubmitInput) (*entity.Expense, error) {
	return m.submitFunc(ctx, employee, in)
}

func (m *mockExpenseService) Act(ctx context.Context, expenseID string, actor *entity.User, action entity.Action, comments string) (*entity.Expense, error) {
	return m.actFunc(ctx, expenseID, actor, action, comments)
}

func (m *mockExpenseService) ListMine(ctx context.Context, actor *entity.User) ([]*entity.Expense, error) {
	return m.listMineFunc(ctx, actor)
}

func (m *mockExpenseService) Get(ctx context.Context, expenseID string, actor *entity.User) (*entity.Expense, error) {
	return m.getFunc(ctx, expenseID, actor)
}

func (m *mockExpenseService) History(ctx context.Context, expenseID string, actor *entity.User) ([]*entity.ActionHistory, error) {
	return m.historyFunc(ctx, expenseID, actor)
}

func (m *mockExpenseService) Receipt(ctx context.Context, expenseID string, actor *entity.User) (*service.ReceiptFile, error) {
	return m.receiptFunc(ctx, expenseID, actor)
}

func (m *mockExpenseService) ListPending(ctx context.Context, approver *entity.User) ([]*service.PendingExpense, error) {
	return m.listPendingFunc(ctx, approver)
}

func (m *mockExpenseService) Export(ctx context.Context, actor *entity.User) (*service.Report, error) {
	return m.exportFunc(ctx, actor)
}

type recordedRequest struct {
	method, path string
	status       int
}

type mockMetrics struct {
	requests []recordedRequest
}

func (m *mockMetrics) RecordRequest(method, path string, status int, _ time.Duration) {
	m.requests = append(m.requests, recordedRequest{method, path, status})
}

func (m *mockMetrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
}

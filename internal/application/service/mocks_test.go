package service

import (
	"context"
	"sort"
	"sync"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// memUsers is a map-backed user directory
type memUsers struct {
	mu    sync.Mutex
	users map[string]*entity.User
}

func newMemUsers(users ...*entity.User) *memUsers {
	m := &memUsers{users: make(map[string]*entity.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) GetByID(ctx context.Context, id string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		c := *u
		return &c, nil
	}
	return nil, apperr.NotFound("user", id)
}

func (m *memUsers) Save(ctx context.Context, user *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *user
	m.users[user.ID] = &c
	return nil
}

type mockRuleRepo struct {
	createFunc     func(ctx context.Context, rule *entity.ApprovalRule) error
	getByIDFunc    func(ctx context.Context, companyID, id string) (*entity.ApprovalRule, error)
	listFunc       func(ctx context.Context, companyID string) ([]*entity.ApprovalRule, error)
	listActiveFunc func(ctx context.Context, companyID string, max decimal.Decimal) ([]*entity.ApprovalRule, error)
	updateFunc     func(ctx context.Context, rule *entity.ApprovalRule) error
	deleteFunc     func(ctx context.Context, companyID, id string) error
}

func (m *mockRuleRepo) Create(ctx context.Context, rule *entity.ApprovalRule) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, rule)
	}
	return nil
}

func (m *mockRuleRepo) GetByID(ctx context.Context, companyID, id string) (*entity.ApprovalRule, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, companyID, id)
	}
	return nil, apperr.NotFound("rule", id)
}

func (m *mockRuleRepo) ListByCompany(ctx context.Context, companyID string) ([]*entity.ApprovalRule, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, companyID)
	}
	return nil, nil
}

func (m *mockRuleRepo) ListActive(ctx context.Context, companyID string, max decimal.Decimal) ([]*entity.ApprovalRule, error) {
	if m.listActiveFunc != nil {
		return m.listActiveFunc(ctx, companyID, max)
	}
	return nil, nil
}

func (m *mockRuleRepo) Update(ctx context.Context, rule *entity.ApprovalRule) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, rule)
	}
	return nil
}

func (m *mockRuleRepo) Delete(ctx context.Context, companyID, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, companyID, id)
	}
	return nil
}

// rulesOf serves ListActive from a fixed slice, filtering the way the stores do
func rulesOf(rules ...*entity.ApprovalRule) *mockRuleRepo {
	return &mockRuleRepo{
		listActiveFunc: func(ctx context.Context, companyID string, max decimal.Decimal) ([]*entity.ApprovalRule, error) {
			var out []*entity.ApprovalRule
			for _, r := range rules {
				if r.CompanyID == companyID && r.IsActive && r.AmountThreshold.LessThanOrEqual(max) {
					out = append(out, r)
				}
			}
			return out, nil
		},
	}
}

// readGate holds the first want readers until all of them have arrived
type readGate struct {
	mu   sync.Mutex
	n    int
	want int
	open chan struct{}
}

func newReadGate(want int) *readGate {
	return &readGate{want: want, open: make(chan struct{})}
}

func (g *readGate) wait() {
	g.mu.Lock()
	g.n++
	if g.n == g.want {
		close(g.open)
	}
	g.mu.Unlock()
	<-g.open
}

// memExpenseRepo stores copies and enforces the version check on Update
type memExpenseRepo struct {
	mu         sync.Mutex
	items      map[string]*entity.Expense
	gate       *readGate
	createFunc func(ctx context.Context, exp *entity.Expense) error
}

func newMemExpenseRepo() *memExpenseRepo {
	return &memExpenseRepo{items: make(map[string]*entity.Expense)}
}

func (m *memExpenseRepo) Create(ctx context.Context, exp *entity.Expense) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, exp)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	exp.Version = 1
	m.items[exp.ID] = exp.Clone()
	return nil
}

func (m *memExpenseRepo) GetByID(ctx context.Context, id string) (*entity.Expense, error) {
	m.mu.Lock()
	exp, ok := m.items[id]
	var c *entity.Expense
	if ok {
		c = exp.Clone()
	}
	m.mu.Unlock()

	if !ok {
		return nil, apperr.NotFound("expense", id)
	}
	if m.gate != nil {
		m.gate.wait()
	}
	return c, nil
}

func (m *memExpenseRepo) ListByEmployee(ctx context.Context, employeeID string) ([]*entity.Expense, error) {
	return m.filter(func(e *entity.Expense) bool { return e.EmployeeID == employeeID }), nil
}

func (m *memExpenseRepo) ListPendingForApprover(ctx context.Context, approverID string) ([]*entity.Expense, error) {
	return m.filter(func(e *entity.Expense) bool { return workflow.CanAct(e, approverID) }), nil
}

func (m *memExpenseRepo) Update(ctx context.Context, exp *entity.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[exp.ID]
	if !ok {
		return apperr.NotFound("expense", exp.ID)
	}
	if cur.Version != exp.Version {
		return apperr.Conflict("expense was modified concurrently")
	}
	exp.Version++
	m.items[exp.ID] = exp.Clone()
	return nil
}

func (m *memExpenseRepo) stored(id string) *entity.Expense {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id].Clone()
}

func (m *memExpenseRepo) filter(keep func(*entity.Expense) bool) []*entity.Expense {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Expense
	for _, e := range m.items {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

type memHistory struct {
	mu      sync.Mutex
	records []*entity.ActionHistory
}

func (m *memHistory) Create(ctx context.Context, h *entity.ActionHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, h)
	return nil
}

func (m *memHistory) ListByExpense(ctx context.Context, expenseID string) ([]*entity.ActionHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.ActionHistory
	for _, h := range m.records {
		if h.ExpenseID == expenseID {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockReceiptStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	saveErr error
	deleted []string
}

func newMockReceiptStore() *mockReceiptStore {
	return &mockReceiptStore{files: make(map[string][]byte)}
}

func (m *mockReceiptStore) Save(ctx context.Context, expenseID, filename string, content []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := expenseID + "/" + filename
	m.files[key] = content
	return key, nil
}

func (m *mockReceiptStore) Read(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.files[key]; ok {
		return b, nil
	}
	return nil, apperr.NotFound("receipt", key)
}

func (m *mockReceiptStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	m.deleted = append(m.deleted, key)
	return nil
}

type mockConverter struct {
	convertFunc func(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

func (m *mockConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if m.convertFunc != nil {
		return m.convertFunc(ctx, amount, from, to)
	}
	return amount, nil
}

type mockReportWriter struct {
	writeFunc func(ctx context.Context, owner *entity.User, expenses []*entity.Expense) ([]byte, error)
}

func (m *mockReportWriter) ContentType() string { return "text/csv" }
func (m *mockReportWriter) Extension() string   { return "csv" }

func (m *mockReportWriter) WriteExpenses(ctx context.Context, owner *entity.User, expenses []*entity.Expense) ([]byte, error) {
	if m.writeFunc != nil {
		return m.writeFunc(ctx, owner, expenses)
	}
	return []byte("report"), nil
}

type mockNotifier struct {
	mu        sync.Mutex
	sent      map[string][]string
	notifyErr error
}

func (m *mockNotifier) Notify(ctx context.Context, user *entity.User, message string) error {
	if m.notifyErr != nil {
		return m.notifyErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = make(map[string][]string)
	}
	m.sent[user.ID] = append(m.sent[user.ID], message)
	return nil
}

// recordingPublisher keeps events instead of dispatching them
type recordingPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (p *recordingPublisher) DispatchAsync(ctx context.Context, evt *event.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []event.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type recordingMetrics struct {
	mu          sync.Mutex
	submissions []string
	actions     []string
	conversions []string
}

func (m *recordingMetrics) ObserveSubmission(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = append(m.submissions, outcome)
}

func (m *recordingMetrics) ObserveAction(action, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action+":"+outcome)
}

func (m *recordingMetrics) ObserveConversion(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversions = append(m.conversions, outcome)
}

package container

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/config"
	"github.com/garyjia/expense-approval/pkg/database"
)

func testConfig(t *testing.T, ratesURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Server:   config.ServerConfig{Host: "127.0.0.1", Port: 0, ReadTimeout: time.Second, WriteTimeout: time.Second},
		Database: config.DatabaseConfig{Driver: config.DriverSQLite, Path: database.MemoryPath},
		Mongo:    config.MongoConfig{Database: "unused"},
		Currency: config.CurrencyConfig{BaseURL: ratesURL, Timeout: time.Second, CacheTTL: time.Minute, RequestsPerSecond: 10, Burst: 10},
		Auth:     config.AuthConfig{JWTSecret: "test-secret", Issuer: "expense-approval"},
		Receipts: config.ReceiptsConfig{Dir: t.TempDir(), MaxBytes: 1 << 20},
		Users: []config.UserSeed{
			{ID: "adm", CompanyID: "acme", Name: "Ann", Role: "Admin", Currency: "USD"},
			{ID: "mgr", CompanyID: "acme", Name: "Max", Role: "Manager", Currency: "EUR"},
			{ID: "emp", CompanyID: "acme", Name: "Ada", Role: "Employee", ManagerID: "mgr", Currency: "USD"},
		},
	}
}

func ratesServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"base":"USD","rates":{"USD":1,"EUR":0.5}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.ErrorContains(t, err, "config is required")

	_, err = NewContainer(&config.Config{}, nil)
	assert.ErrorContains(t, err, "logger is required")

	_, err = NewContainer(&config.Config{Database: config.DatabaseConfig{Driver: "oracle"}}, zap.NewNop())
	assert.ErrorContains(t, err, "invalid config")
}

func TestContainer_Lifecycle(t *testing.T) {
	c, err := NewContainer(testConfig(t, ratesServer(t).URL+"/"), zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.ErrorContains(t, c.Start(ctx), "already started")

	health := c.Health(ctx)
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)

	user, err := c.Repositories().Users.GetByID(ctx, "emp")
	require.NoError(t, err)
	assert.Equal(t, "mgr", user.ManagerID)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.ErrorContains(t, c.Close(), "already closed")
	assert.ErrorContains(t, c.Start(ctx), "has been closed")
}

// TestContainer_ApprovalRoundTrip drives a two step flow through the wired HTTP surface.
func TestContainer_ApprovalRoundTrip(t *testing.T) {
	c, err := NewContainer(testConfig(t, ratesServer(t).URL+"/"), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	router := c.Server().Router()
	token := func(userID string) string {
		tok, err := c.Authenticator().Issue(userID, time.Hour)
		require.NoError(t, err)
		return tok
	}
	call := func(method, path, userID string, body interface{}) (int, map[string]interface{}) {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Authorization", "Bearer "+token(userID))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return rec.Code, resp
	}

	code, _ := call(http.MethodPost, "/api/approval-rules", "adm", map[string]interface{}{
		"name":                        "default",
		"amount_threshold":            "0",
		"approval_type":               "all",
		"is_sequential":               true,
		"is_manager_default_approver": true,
		"approvers":                   []string{"adm"},
	})
	require.Equal(t, http.StatusCreated, code)

	code, resp := call(http.MethodPost, "/api/expenses", "emp", map[string]interface{}{
		"amount": "100", "currency": "USD", "category": "Travel", "description": "train", "date": "2024-05-01",
	})
	require.Equal(t, http.StatusCreated, code)
	expense := resp["data"].(map[string]interface{})
	id := expense["id"].(string)
	assert.Equal(t, "Pending", expense["status"])
	assert.Len(t, expense["approval_flow"], 2)

	code, resp = call(http.MethodGet, "/api/expenses/pending-approval", "mgr", nil)
	require.Equal(t, http.StatusOK, code)
	pending := resp["data"].([]interface{})
	require.Len(t, pending, 1)
	assert.Equal(t, "50", pending[0].(map[string]interface{})["converted_amount"])
	assert.Equal(t, "EUR", pending[0].(map[string]interface{})["target_currency"])

	code, _ = call(http.MethodPut, "/api/expenses/"+id+"/approve", "adm", map[string]string{"action": "approve"})
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = call(http.MethodPut, "/api/expenses/"+id+"/approve", "mgr", map[string]string{"action": "approve"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), resp["data"].(map[string]interface{})["current_approval_step"])

	code, resp = call(http.MethodPut, "/api/expenses/"+id+"/approve", "adm", map[string]string{"action": "approve", "comments": "ok"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Approved", resp["data"].(map[string]interface{})["status"])

	code, resp = call(http.MethodGet, "/api/expenses/"+id+"/history", "emp", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp["data"], 2)
}

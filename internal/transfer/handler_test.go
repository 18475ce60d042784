package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/crossbank/internal/history"
	"github.com/congo-pay/crossbank/internal/logging"
	"github.com/congo-pay/crossbank/internal/routing"
	"github.com/congo-pay/crossbank/internal/saga"
	"github.com/congo-pay/crossbank/internal/store"
	"github.com/congo-pay/crossbank/internal/validation"
)

type fixture struct {
	app   *fiber.App
	home  *store.MemoryBackend
	bankB *store.MemoryBackend
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	home := store.NewMemoryBackend()
	bankB := store.NewMemoryBackend()
	home.Seed(store.SeedAccount{AccountID: "alice", Balance: 5000})
	bankB.Seed(store.SeedAccount{AccountID: "bob", RoutingCode: "002", Name: "Bob"})

	reg, err := store.NewRegistry(
		store.Definition{Handle: "home", RoutingCode: "001", Role: store.RoleSender, Backend: home},
		store.Definition{Handle: "bank-b", RoutingCode: "002", Backend: bankB},
	)
	require.NoError(t, err)
	cache := routing.New(reg, reg, logging.Discard())
	cache.Refresh(context.Background())
	orch := saga.New(reg,
		validation.New(reg, cache, validation.Home{Store: reg.Sender(), RoutingCode: "001"}),
		history.NewRecorder(reg, reg, logging.Discard()),
		logging.Discard(),
	)

	h := NewHandler(orch, cache)
	app := fiber.New()
	app.Post("/transfers", h.Create)
	app.Get("/routing", h.Routes)
	app.Get("/routing/:accountId", h.Route)
	app.Post("/routing/refresh", h.Refresh)
	return fixture{app: app, home: home, bankB: bankB}
}

func (f fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestCreateCompleted(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, fiber.MethodPost, "/transfers", `{"transfer_id":"tx-9","sender_account_id":"alice","receiver_account_id":"bob","receiver_routing_code":"002","amount":500}`)

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "tx-9", body["transfer_id"])
	assert.Equal(t, "completed", body["status"])
	assert.EqualValues(t, 4500, body["sender_balance"])
	assert.NotNil(t, body["record"])
	fan, ok := body["fan_out"].([]any)
	require.True(t, ok)
	assert.Len(t, fan, 1)

	bal, _ := f.home.Balance("alice")
	assert.Equal(t, int64(4500), bal)
}

func TestCreateStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(f fixture)
		body   string
		code   int
		status string
		reason string
	}{
		{
			name:   "insufficient funds",
			body:   `{"sender_account_id":"alice","receiver_account_id":"bob","amount":9000}`,
			code:   http.StatusUnprocessableEntity,
			status: "aborted",
			reason: "insufficient_funds",
		},
		{
			name:   "invalid request",
			body:   `{"sender_account_id":"alice","receiver_account_id":"bob","amount":0}`,
			code:   http.StatusBadRequest,
			status: "aborted",
			reason: "invalid_request",
		},
		{
			name: "credit failure compensated",
			setup: func(f fixture) {
				f.bankB.SetFault(store.OpPatchBalance, store.FailAlways(errors.New("503")))
			},
			body:   `{"sender_account_id":"alice","receiver_account_id":"bob","amount":100}`,
			code:   http.StatusBadGateway,
			status: "aborted",
			reason: "credit_failed",
		},
		{
			name: "compensation failed",
			setup: func(f fixture) {
				f.bankB.SetFault(store.OpPatchBalance, store.FailAlways(errors.New("503")))
				f.home.SetFault(store.OpPatchBalance, store.FailFrom(2, errors.New("timeout")))
			},
			body:   `{"sender_account_id":"alice","receiver_account_id":"bob","amount":100}`,
			code:   http.StatusInternalServerError,
			status: "compensation_failed",
			reason: "credit_failed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.setup != nil {
				tc.setup(f)
			}
			resp, body := f.do(t, fiber.MethodPost, "/transfers", tc.body)
			assert.Equal(t, tc.code, resp.StatusCode)
			assert.Equal(t, tc.status, body["status"])
			assert.Equal(t, tc.reason, body["reason"])
			if tc.status != "completed" {
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestCreateRejectsMalformedBody(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, fiber.MethodPost, "/transfers", `{"amount":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoutingEndpoints(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, fiber.MethodGet, "/routing/bob", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bank-b", body["store"])
	assert.Equal(t, "002", body["routing_code"])

	resp, _ = f.do(t, fiber.MethodGet, "/routing/nobody", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.bankB.Seed(store.SeedAccount{AccountID: "bea", RoutingCode: "002"})
	resp, body = f.do(t, fiber.MethodPost, "/routing/refresh", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["entries"])

	resp, body = f.do(t, fiber.MethodGet, "/routing", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	entries, ok := body["entries"].([]any)
	require.True(t, ok)
	assert.Len(t, entries, 2)
}

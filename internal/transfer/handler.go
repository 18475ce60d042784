package transfer

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/crossbank/internal/routing"
	"github.com/congo-pay/crossbank/internal/saga"
	"github.com/congo-pay/crossbank/internal/store"
)

// Transferer runs one transfer. *saga.Orchestrator implements it.
type Transferer interface {
	Transfer(ctx context.Context, req saga.Request) saga.Outcome
}

// RoutingTable is the routing cache as seen by the API. *routing.Cache
// implements it.
type RoutingTable interface {
	Lookup(accountID string) (routing.Entry, bool)
	Entries() []routing.Entry
	Refresh(ctx context.Context) routing.RefreshReport
	RefreshedAt() time.Time
}

// Handler exposes transfer and routing endpoints.
type Handler struct {
	transfers Transferer
	routes    RoutingTable
}

// NewHandler constructs a transfer handler.
func NewHandler(transfers Transferer, routes RoutingTable) *Handler {
	return &Handler{transfers: transfers, routes: routes}
}

type fanOutResult struct {
	Store string `json:"store"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// OutcomeResponse is the JSON body of every transfer response.
type OutcomeResponse struct {
	TransferID      string                `json:"transfer_id"`
	Status          saga.Status           `json:"status"`
	State           saga.State            `json:"state"`
	Reason          saga.Reason           `json:"reason,omitempty"`
	Party           saga.Party            `json:"party,omitempty"`
	Error           string                `json:"error,omitempty"`
	Trail           []saga.State          `json:"trail"`
	SenderBalance   int64                 `json:"sender_balance"`
	ReceiverBalance int64                 `json:"receiver_balance"`
	Record          *store.TransferRecord `json:"record,omitempty"`
	FanOut          []fanOutResult        `json:"fan_out,omitempty"`
}

// NewOutcomeResponse flattens an outcome for JSON.
func NewOutcomeResponse(out saga.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		TransferID:      out.TransferID,
		Status:          out.Status,
		State:           out.State,
		Reason:          out.Reason,
		Party:           out.Party,
		Trail:           out.Trail,
		SenderBalance:   out.SenderBalance,
		ReceiverBalance: out.ReceiverBalance,
		Record:          out.Record,
	}
	if err := out.Err(); err != nil {
		resp.Error = err.Error()
	}
	if out.FanOut != nil {
		for _, r := range out.FanOut.Results {
			fr := fanOutResult{Store: string(r.Store), OK: r.OK()}
			if r.Err != nil {
				fr.Error = r.Err.Error()
			}
			resp.FanOut = append(resp.FanOut, fr)
		}
	}
	return resp
}

// StatusCode maps an outcome to its HTTP status.
func StatusCode(out saga.Outcome) int {
	switch out.Status {
	case saga.StatusCompleted:
		return http.StatusCreated
	case saga.StatusCompensationFailed:
		return http.StatusInternalServerError
	}
	switch out.Reason {
	case saga.ReasonInvalidRequest:
		return http.StatusBadRequest
	case saga.ReasonAccountBusy:
		return http.StatusConflict
	case saga.ReasonDebitFailed, saga.ReasonCreditFailed, saga.ReasonStoreUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

// Create runs a transfer and always answers with its outcome.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req saga.Request
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.TransferID == "" {
		req.TransferID = c.Get("Idempotency-Key")
	}

	out := h.transfers.Transfer(c.UserContext(), req)
	return c.Status(StatusCode(out)).JSON(NewOutcomeResponse(out))
}

// Route returns the routing entry of one account.
func (h *Handler) Route(c *fiber.Ctx) error {
	entry, ok := h.routes.Lookup(c.Params("accountId"))
	if !ok {
		return fiber.NewError(http.StatusNotFound, "no route for account")
	}
	return c.JSON(entry)
}

// Routes returns the whole routing table.
func (h *Handler) Routes(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"entries":      h.routes.Entries(),
		"refreshed_at": h.routes.RefreshedAt(),
	})
}

// Refresh rebuilds the routing table from every receiver store.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	report := h.routes.Refresh(c.UserContext())

	failures := make([]fiber.Map, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, fiber.Map{"store": f.Store, "error": f.Err.Error()})
	}
	conflicts := make([]fiber.Map, 0, len(report.Conflicts))
	for _, cf := range report.Conflicts {
		conflicts = append(conflicts, fiber.Map{"account_id": cf.AccountID, "kept": cf.Kept, "dropped": cf.Dropped})
	}
	return c.JSON(fiber.Map{
		"entries":      report.Entries,
		"failures":     failures,
		"conflicts":    conflicts,
		"refreshed_at": report.RefreshedAt,
	})
}

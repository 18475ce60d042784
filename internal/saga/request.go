package saga

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Request is an immutable transfer instruction. Amount is in minor currency
// units. TransferID is generated when empty.
type Request struct {
	TransferID          string `json:"transfer_id,omitempty"`
	SenderAccountID     string `json:"sender_account_id"`
	SenderRoutingCode   string `json:"sender_routing_code,omitempty"`
	ReceiverAccountID   string `json:"receiver_account_id"`
	ReceiverRoutingCode string `json:"receiver_routing_code,omitempty"`
	ReceiverName        string `json:"receiver_name,omitempty"`
	Amount              int64  `json:"amount"`
}

// Validate checks the request shape before any store is touched.
func (r Request) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SenderAccountID, validation.Required),
		validation.Field(&r.ReceiverAccountID, validation.Required, validation.By(r.notSelf)),
		validation.Field(&r.Amount, validation.Required, validation.Min(int64(1))),
	)
}

func (r Request) notSelf(any) error {
	if r.SenderAccountID == r.ReceiverAccountID && r.SenderRoutingCode == r.ReceiverRoutingCode {
		return errors.New("must differ from the sender account")
	}
	return nil
}

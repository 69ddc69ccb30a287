package amqp

import (
	"encoding/json"
	"time"
)

// BillEmailMessage asks the worker to deliver one bill breakdown email.
// It carries only identifiers; the worker loads the bill and tenant from
// the database so a stale queue never sends stale amounts.
type BillEmailMessage struct {
	BillID    string    `json:"bill_id"`
	TenantID  string    `json:"tenant_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBillEmailMessage(billID, tenantID string) *BillEmailMessage {
	return &BillEmailMessage{
		BillID:    billID,
		TenantID:  tenantID,
		Timestamp: time.Now(),
	}
}

func (m *BillEmailMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BillEmailMessageFromJSON(data []byte) (*BillEmailMessage, error) {
	var msg BillEmailMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type TemplateKind string

const (
	KindBill   TemplateKind = "bill"
	KindPayday TemplateKind = "payday"
)

type TemplateAction string

const (
	ActionUpsert TemplateAction = "upsert"
	ActionDelete TemplateAction = "delete"
)

// TemplateChangedMessage asks the expansion worker to regenerate (or clean
// up) the entries of one template. It carries only identifiers; the worker
// reads the template from the ledger.
type TemplateChangedMessage struct {
	UserID     string         `json:"userId"`
	TemplateID string         `json:"templateId"`
	Kind       TemplateKind   `json:"kind"`
	Action     TemplateAction `json:"action"`
	Year       int            `json:"year"`
	Timestamp  time.Time      `json:"timestamp"`
}

func NewTemplateChangedMessage(userID, templateID string, kind TemplateKind, action TemplateAction, year int) *TemplateChangedMessage {
	return &TemplateChangedMessage{
		UserID:     userID,
		TemplateID: templateID,
		Kind:       kind,
		Action:     action,
		Year:       year,
		Timestamp:  time.Now(),
	}
}

func (m *TemplateChangedMessage) Validate() error {
	if m.UserID == "" || m.TemplateID == "" {
		return errors.New("message missing user or template id")
	}
	if m.Kind != KindBill && m.Kind != KindPayday {
		return fmt.Errorf("unknown template kind %q", m.Kind)
	}
	if m.Action != ActionUpsert && m.Action != ActionDelete {
		return fmt.Errorf("unknown action %q", m.Action)
	}
	return nil
}

func (m *TemplateChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TemplateChangedMessageFromJSON(data []byte) (*TemplateChangedMessage, error) {
	var msg TemplateChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

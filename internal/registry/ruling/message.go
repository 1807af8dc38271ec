// Package ruling carries arbitrator rulings from the ruling topic to the registry.
package ruling

import (
	"encoding/json"
	"errors"

	"tcr/internal/registry/models"
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
)

// Message is the wire form of a final ruling. The dispute id travels as a
// decimal string so 64-bit ids survive JSON consumers that use doubles.
type Message struct {
	DisputeID id.DisputeID  `json:"dispute_id,string"`
	Ruling    models.Ruling `json:"ruling"`
}

// Key partitions rulings by dispute so replays of one dispute stay ordered.
func (m Message) Key() []byte {
	return []byte(m.DisputeID.String())
}

// Encode marshals m.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses and validates a ruling message.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return Message{}, de
		}
		return Message{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed ruling message")
	}
	if !m.Ruling.IsValid() {
		return Message{}, dErrors.Newf(dErrors.CodeInvalidInput, "unknown ruling %d", m.Ruling)
	}
	return m, nil
}

package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaiso/Chatplane/internal/domain"
)

// Envelope — конверт события на шине.
type Envelope struct {
	ID             string               `json:"id"`
	Topic          domain.Topic         `json:"topic"`
	Event          domain.RealtimeEvent `json:"event"`
	OrganizationID string               `json:"organizationId"`
	Data           json.RawMessage      `json:"data"`
	At             time.Time            `json:"at"`
}

// Decode разбирает Data в T.
func Decode[T any](env *Envelope) (T, error) {
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s %s: %w", env.Topic, env.Event, err)
	}
	return v, nil
}

package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
)

// Notification is one event to report. Action is matched against webhook
// filters; Payload travels to the receiver unchanged.
type Notification struct {
	Action  string
	Payload map[string]any
}

func NewNotification(action string, payload map[string]any) Notification {
	return Notification{Action: action, Payload: payload}
}

// MarshalJSON writes Action first followed by the payload keys in sorted
// order so the signed body is stable.
func (n Notification) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"Action":`)
	action, err := json.Marshal(n.Action)
	if err != nil {
		return nil, err
	}
	buf.Write(action)

	keys := make([]string, 0, len(n.Payload))
	for k := range n.Payload {
		if k == "Action" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(n.Payload[k])
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	action, ok := raw["Action"].(string)
	if !ok {
		// receivers written against lower-case payloads
		action, ok = raw["action"].(string)
		delete(raw, "action")
	}
	if !ok || action == "" {
		return errors.New("notification action is required")
	}
	delete(raw, "Action")
	n.Action = action
	n.Payload = raw
	return nil
}

// Actions returns the action of every notification in the batch.
func Actions(notifications []Notification) []string {
	actions := make([]string, 0, len(notifications))
	for _, n := range notifications {
		actions = append(actions, n.Action)
	}
	return actions
}

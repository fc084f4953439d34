package event

import "encoding/json"

// Envelope is the JSON shape used by the event feed.
type Envelope struct {
	Type Type            `json:"type"`
	Seq  uint64          `json:"seq"`
	Data json.RawMessage `json:"data"`
}

// Marshal wraps ev in an Envelope and encodes it.
func Marshal(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: ev.GetType(), Seq: ev.GetSeq(), Data: data})
}

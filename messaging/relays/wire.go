package relays

import (
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"meshnostr/protocol/eventcodec"
)

// Client -> relay frames are JSON arrays: ["EVENT", <event>],
// ["REQ", <subId>, <filter>...], ["CLOSE", <subId>]. Relay -> client frames
// are EVENT/EOSE/OK/NOTICE; anything else decodes as Unknown and is ignored.

const (
	labelEvent  = "EVENT"
	labelReq    = "REQ"
	labelClose  = "CLOSE"
	labelEOSE   = "EOSE"
	labelOK     = "OK"
	labelNotice = "NOTICE"
)

type EventEnvelope struct {
	SubscriptionID string
	Event          *nostr.Event
}

type EOSEEnvelope struct {
	SubscriptionID string
}

type OKEnvelope struct {
	EventID  string
	Accepted bool
	Message  string
}

type NoticeEnvelope struct {
	Message string
}

type UnknownEnvelope struct {
	Label string
}

func encodeEventMessage(ev *nostr.Event) ([]byte, error) {
	evJSON, err := eventcodec.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]json.RawMessage{rawString(labelEvent), evJSON})
}

func encodeReqMessage(subscriptionID string, filters []nostr.Filter) ([]byte, error) {
	parts := []json.RawMessage{rawString(labelReq), rawString(subscriptionID)}
	for _, f := range filters {
		fJSON, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		parts = append(parts, fJSON)
	}
	return json.Marshal(parts)
}

func encodeCloseMessage(subscriptionID string) ([]byte, error) {
	return json.Marshal([]json.RawMessage{rawString(labelClose), rawString(subscriptionID)})
}

// decodeRelayMessage parses one inbound frame into a typed envelope.
// Malformed frames and unrecognized labels both come back as
// UnknownEnvelope with a nil error; only unparseable JSON is an error.
func decodeRelayMessage(data []byte) (interface{}, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, &eventcodec.InvalidEventShapeError{Reason: fmt.Sprintf("frame is not a JSON array: %s", err)}
	}
	if len(parts) == 0 {
		return nil, &eventcodec.InvalidEventShapeError{Reason: "empty frame"}
	}
	var label string
	if err := json.Unmarshal(parts[0], &label); err != nil {
		return nil, &eventcodec.InvalidEventShapeError{Reason: "frame label is not a string"}
	}
	switch label {
	case labelEvent:
		if len(parts) < 3 {
			return UnknownEnvelope{Label: label}, nil
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return UnknownEnvelope{Label: label}, nil
		}
		ev, err := eventcodec.Unmarshal(parts[2])
		if err != nil {
			return nil, err
		}
		return EventEnvelope{SubscriptionID: subID, Event: ev}, nil
	case labelEOSE:
		if len(parts) < 2 {
			return UnknownEnvelope{Label: label}, nil
		}
		var subID string
		if err := json.Unmarshal(parts[1], &subID); err != nil {
			return UnknownEnvelope{Label: label}, nil
		}
		return EOSEEnvelope{SubscriptionID: subID}, nil
	case labelOK:
		if len(parts) < 3 {
			return UnknownEnvelope{Label: label}, nil
		}
		var env OKEnvelope
		if err := json.Unmarshal(parts[1], &env.EventID); err != nil {
			return UnknownEnvelope{Label: label}, nil
		}
		if err := json.Unmarshal(parts[2], &env.Accepted); err != nil {
			return UnknownEnvelope{Label: label}, nil
		}
		if len(parts) > 3 {
			json.Unmarshal(parts[3], &env.Message)
		}
		return env, nil
	case labelNotice:
		if len(parts) < 2 {
			return UnknownEnvelope{Label: label}, nil
		}
		var env NoticeEnvelope
		if err := json.Unmarshal(parts[1], &env.Message); err != nil {
			return UnknownEnvelope{Label: label}, nil
		}
		return env, nil
	}
	return UnknownEnvelope{Label: label}, nil
}

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

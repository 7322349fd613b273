package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/gorilla/websocket"

	"github.com/swapychat/pairing-relay/internal/pairing"
)

const (
	MessageTypeInit        = "init"
	MessageTypeSkip        = "skip"
	MessageTypeWaiting     = "waiting"
	MessageTypeStart       = "start"
	MessageTypePartner     = "partner"
	MessageTypePartnerLeft = "partner-left"
	MessageTypeError       = "error"
)

type frameKind uint8

const (
	frameSignal frameKind = iota
	frameInit
	frameSkip
)

var errMalformed = errors.New("malformed control message")

type InitMessage struct {
	Type   string `json:"type"`
	Tag    string `json:"tag,omitempty"`
	Filter string `json:"filter,omitempty"`
}

type typedMessage struct {
	Type string `json:"type"`
}

type PartnerMessage struct {
	Type string `json:"type"`
	Tag  string `json:"tag"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// parseFrame classifies an inbound frame. Text frames whose JSON "type" is
// init or skip are control messages and must decode strictly; anything else
// is an opaque signal for the partner.
func parseFrame(msgType int, data []byte) (frameKind, pairing.Attributes, error) {
	if msgType != websocket.TextMessage {
		return frameSignal, pairing.Attributes{}, nil
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&envelope); err != nil {
		return frameSignal, pairing.Attributes{}, nil
	}

	switch envelope.Type {
	case MessageTypeInit:
		var msg InitMessage
		if err := decodeStrict(data, &msg); err != nil {
			return frameInit, pairing.Attributes{}, err
		}
		return frameInit, pairing.Attributes{Tag: msg.Tag, Filter: msg.Filter}, nil
	case MessageTypeSkip:
		var msg typedMessage
		if err := decodeStrict(data, &msg); err != nil {
			return frameSkip, pairing.Attributes{}, err
		}
		return frameSkip, pairing.Attributes{}, nil
	default:
		return frameSignal, pairing.Attributes{}, nil
	}
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(errMalformed, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.Join(errMalformed, errors.New("trailing data after message"))
	}
	return nil
}

// encodeEvent renders an outbound event as a WebSocket frame.
func encodeEvent(ev pairing.Event) (frame, error) {
	var v any
	switch ev.Kind {
	case pairing.EventRelayed:
		msgType := websocket.TextMessage
		if ev.Payload.Binary {
			msgType = websocket.BinaryMessage
		}
		return frame{msgType: msgType, data: ev.Payload.Data}, nil
	case pairing.EventPairingPending:
		v = typedMessage{Type: MessageTypeWaiting}
	case pairing.EventPairingEstablished:
		v = typedMessage{Type: MessageTypeStart}
	case pairing.EventPartnerDescriptor:
		v = PartnerMessage{Type: MessageTypePartner, Tag: ev.Tag}
	case pairing.EventPartnerLeft:
		v = typedMessage{Type: MessageTypePartnerLeft}
	default:
		return frame{}, errors.New("unknown event kind " + ev.Kind.String())
	}
	data, err := json.Marshal(v)
	if err != nil {
		return frame{}, err
	}
	return frame{msgType: websocket.TextMessage, data: data}, nil
}

func encodeError(code, message string) frame {
	data, _ := json.Marshal(ErrorMessage{Type: MessageTypeError, Code: code, Message: message})
	return frame{msgType: websocket.TextMessage, data: data}
}

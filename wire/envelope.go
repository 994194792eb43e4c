// Package wire implements the CDP frame codec (C1) and the call registry
// (C2): turning outbound calls into JSON bytes, classifying inbound bytes as
// either a response or an event, and correlating responses back to the
// caller that issued them.
package wire

import (
	"fmt"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

// RawMessage is a raw, not-yet-decoded JSON value, reused across the codec
// so params/results are only ever copied once.
type RawMessage = easyjson.RawMessage

// ProtocolError is the {"code", "message"} object the peer sends in place of
// a result when a call fails.
type ProtocolError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// Frame is the single wire shape this codec knows about: an outbound call,
// an inbound response, or an inbound event. Which fields are populated
// depends on direction; see EncodeCall/EncodeForSession for outbound framing
// and Decode for inbound classification.
type Frame struct {
	ID        int64
	Method    string
	Params    RawMessage
	Result    RawMessage
	Err       *ProtocolError
	SessionID string
}

// IsResponse reports whether the inbound frame is a response (has a
// nonzero ID) rather than an event.
func (f *Frame) IsResponse() bool { return f.ID != 0 }

const sendMessageToTarget = "Target.sendMessageToTarget"
const receivedMessageFromTarget = "Target.receivedMessageFromTarget"

// EncodeCall serializes a browser-scoped call: {"id","method","params"}.
func EncodeCall(id int64, method string, params RawMessage) ([]byte, error) {
	f := &Frame{ID: id, Method: method, Params: params}
	w := &jwriter.Writer{}
	f.marshalOuter(w)
	return w.BuildBytes()
}

// EncodeForSession wraps the inner call inside a Target.sendMessageToTarget
// envelope, per spec: this is the only legal route to a session-scoped call.
// innerID is the id embedded in the stringified inner frame and is what the
// eventual response will be correlated against; outerID is the id of the
// sendMessageToTarget call itself (the registry never waits on it).
func EncodeForSession(outerID, innerID int64, sessionID string, method string, params RawMessage) ([]byte, error) {
	inner := &Frame{ID: innerID, Method: method, Params: params}
	iw := &jwriter.Writer{}
	inner.marshalOuter(iw)
	innerBytes, err := iw.BuildBytes()
	if err != nil {
		return nil, err
	}

	outerParams := &sendToTargetParams{SessionID: sessionID, Message: string(innerBytes)}
	pw := &jwriter.Writer{}
	outerParams.marshalEasyJSON(pw)
	paramsBytes, err := pw.BuildBytes()
	if err != nil {
		return nil, err
	}

	outer := &Frame{ID: outerID, Method: sendMessageToTarget, Params: paramsBytes}
	ow := &jwriter.Writer{}
	outer.marshalOuter(ow)
	return ow.BuildBytes()
}

// marshalOuter writes {"id","method","params","sessionId"} skipping zero
// fields, mirroring cdproto.Message's wire shape as seen in conn.go.
func (f *Frame) marshalOuter(w *jwriter.Writer) {
	w.RawByte('{')
	first := true
	comma := func() {
		if !first {
			w.RawByte(',')
		}
		first = false
	}
	if f.ID != 0 {
		comma()
		w.RawString(`"id":`)
		w.Int64(f.ID)
	}
	if f.Method != "" {
		comma()
		w.RawString(`"method":`)
		w.String(f.Method)
	}
	if len(f.Params) > 0 {
		comma()
		w.RawString(`"params":`)
		w.Raw([]byte(f.Params), nil)
	}
	if f.SessionID != "" {
		comma()
		w.RawString(`"sessionId":`)
		w.String(f.SessionID)
	}
	w.RawByte('}')
}

type sendToTargetParams struct {
	SessionID string
	Message   string
}

func (p *sendToTargetParams) marshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	w.RawString(`"sessionId":`)
	w.String(p.SessionID)
	w.RawByte(',')
	w.RawString(`"message":`)
	w.String(p.Message)
	w.RawByte('}')
}

// Decode classifies a raw inbound message, recursively unwrapping
// Target.receivedMessageFromTarget and re-tagging the embedded frame with
// the outer session ID. It returns a fully classified Frame: IsResponse()
// true means Result/Err are meaningful, false means Method/Params are.
func Decode(raw []byte) (*Frame, error) {
	lex := &jlexer.Lexer{Data: raw}
	f := &Frame{}
	f.unmarshalOuter(lex)
	if err := lex.Error(); err != nil {
		return nil, err
	}

	if f.Method == receivedMessageFromTarget {
		var wrapped sendToTargetParams
		plex := &jlexer.Lexer{Data: []byte(f.Params)}
		wrapped.unmarshalEasyJSON(plex)
		if err := plex.Error(); err != nil {
			return nil, fmt.Errorf("decode %s params: %w", receivedMessageFromTarget, err)
		}
		inner, err := Decode([]byte(wrapped.Message))
		if err != nil {
			return nil, fmt.Errorf("decode embedded message: %w", err)
		}
		inner.SessionID = wrapped.SessionID
		return inner, nil
	}

	if f.ID == 0 && f.Method == "" {
		return nil, fmt.Errorf("malformed message: missing both id and method: %s", raw)
	}
	return f, nil
}

func (f *Frame) unmarshalOuter(l *jlexer.Lexer) {
	if l.IsNull() {
		l.Skip()
		return
	}
	l.Delim('{')
	for !l.IsDelim('}') {
		key := l.UnsafeFieldName(false)
		l.WantColon()
		switch key {
		case "id":
			f.ID = l.Int64()
		case "method":
			f.Method = l.String()
		case "params":
			raw, err := l.Raw()
			if err != nil {
				l.AddError(err)
				return
			}
			f.Params = RawMessage(raw)
		case "result":
			raw, err := l.Raw()
			if err != nil {
				l.AddError(err)
				return
			}
			f.Result = RawMessage(raw)
		case "error":
			f.Err = &ProtocolError{}
			unmarshalProtocolError(l, f.Err)
		case "sessionId":
			f.SessionID = l.String()
		default:
			l.SkipRecursive()
		}
		l.WantComma()
	}
	l.Delim('}')
}

func unmarshalProtocolError(l *jlexer.Lexer, e *ProtocolError) {
	if l.IsNull() {
		l.Skip()
		return
	}
	l.Delim('{')
	for !l.IsDelim('}') {
		key := l.UnsafeFieldName(false)
		l.WantColon()
		switch key {
		case "code":
			e.Code = l.Int64()
		case "message":
			e.Message = l.String()
		default:
			l.SkipRecursive()
		}
		l.WantComma()
	}
	l.Delim('}')
}

func (p *sendToTargetParams) unmarshalEasyJSON(l *jlexer.Lexer) {
	if l.IsNull() {
		l.Skip()
		return
	}
	l.Delim('{')
	for !l.IsDelim('}') {
		key := l.UnsafeFieldName(false)
		l.WantColon()
		switch key {
		case "sessionId":
			p.SessionID = l.String()
		case "message":
			p.Message = l.String()
		default:
			l.SkipRecursive()
		}
		l.WantComma()
	}
	l.Delim('}')
}

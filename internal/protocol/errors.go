package protocol

import "fmt"

// ErrorKind tags the reason a decode failed.
type ErrorKind string

const (
	KindMissingType          ErrorKind = "missing_type"
	KindUnknownMessageType   ErrorKind = "unknown_message_type"
	KindMissingFields        ErrorKind = "missing_fields"
	KindInvalidSystemSubtype ErrorKind = "invalid_system_subtype"
	KindContentParseError    ErrorKind = "content_parse_error"
	KindJSONShapeError       ErrorKind = "json_shape_error"
)

// DecodeError is returned by Decode and DecodeContentBlock. It carries a
// Kind for programmatic dispatch plus a human-readable Detail.
type DecodeError struct {
	Kind     ErrorKind
	Detail   string
	Fields   []string // populated for KindMissingFields
	TypeName string   // populated for KindUnknownMessageType / KindInvalidSystemSubtype
	Inner    error    // populated for KindContentParseError
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case KindMissingFields:
		return fmt.Sprintf("protocol: missing fields %v: %s", e.Fields, e.Detail)
	case KindContentParseError:
		return fmt.Sprintf("protocol: content parse error: %v", e.Inner)
	case KindUnknownMessageType, KindInvalidSystemSubtype:
		return fmt.Sprintf("protocol: %s %q: %s", e.Kind, e.TypeName, e.Detail)
	default:
		return fmt.Sprintf("protocol: %s: %s", e.Kind, e.Detail)
	}
}

func (e *DecodeError) Unwrap() error { return e.Inner }

func missingFields(fields ...string) *DecodeError {
	return &DecodeError{Kind: KindMissingFields, Fields: fields, Detail: "required field(s) absent"}
}

func shapeError(detail string) *DecodeError {
	return &DecodeError{Kind: KindJSONShapeError, Detail: detail}
}

// LineDecodeError wraps a DecodeError (or a raw JSON syntax error) with
// the zero-based index of the offending line, for DecodeStream.
type LineDecodeError struct {
	LineNo int
	Err    error
}

func (e *LineDecodeError) Error() string {
	return fmt.Sprintf("protocol: line %d: %v", e.LineNo, e.Err)
}

func (e *LineDecodeError) Unwrap() error { return e.Err }

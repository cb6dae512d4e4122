package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// Encode renders s as a self-delimiting frame. Headers are emitted in a
// fixed order; a body, when present, follows the header block verbatim and
// the frame always ends with FrameTerminator.
func Encode(s Signal) string {
	var b strings.Builder
	for _, h := range s.Headers() {
		b.WriteString(h.String())
	}
	if s.WithMessage {
		b.WriteString(LineTerminator)
		b.WriteString(s.Message)
		b.WriteString(FrameTerminator)
		return b.String()
	}
	b.WriteString(LineTerminator)
	return b.String()
}

// Decode parses one frame produced by Encode (or by a compatible peer).
// Unrecognised header lines are ignored. It fails with ErrParse when the
// signal type is missing or when WITH_MESSAGE is present but no body can be
// located after the header block.
func Decode(text string) (Signal, error) {
	text = strings.TrimLeft(text, LineTerminator)

	headerBlock := text
	bodyStart := -1
	if idx := strings.Index(text, FrameTerminator); idx >= 0 {
		headerBlock = text[:idx]
		bodyStart = idx + len(FrameTerminator)
	}

	headers := make([]Header, 0, 5)
	for _, line := range strings.Split(headerBlock, LineTerminator) {
		if line == "" {
			continue
		}
		h, err := ParseHeader(line)
		if err != nil {
			continue
		}
		headers = append(headers, h)
	}

	var body string
	if hasWithMessage(headers) {
		if bodyStart < 0 {
			return Signal{}, fmt.Errorf("%w: message marker without body", ErrParse)
		}
		body = strings.TrimSuffix(text[bodyStart:], FrameTerminator)
	}

	s := NewSignal(headers, body)
	if s.Type == "" {
		return Signal{}, fmt.Errorf("%w: missing %s", ErrParse, headerSignalType)
	}
	return s, nil
}

// IsParseError reports whether err came from Decode.
func IsParseError(err error) bool {
	return errors.Is(err, ErrParse)
}

func hasWithMessage(headers []Header) bool {
	for _, h := range headers {
		if _, ok := h.(WithMessage); ok {
			return true
		}
	}
	return false
}

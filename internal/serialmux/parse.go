package serialmux

import (
	"strings"

	"github.com/tidwall/gjson"
)

// LineType classifies one line of gateway output.
type LineType string

const (
	LineTypeUWBFrame LineType = "uwb_frame"
	LineTypeStatus   LineType = "status"
	LineTypeBlank    LineType = "blank"
	LineTypeUnknown  LineType = "unknown"
)

// ClassifyLine inspects a gateway line. Position batches carry a "readings"
// array; status lines carry a "gateway" object. Anything else, including
// the gateway's plain-text shell echo, is unknown.
func ClassifyLine(line string) LineType {
	line = strings.TrimSpace(line)
	if line == "" {
		return LineTypeBlank
	}
	if !gjson.Valid(line) {
		return LineTypeUnknown
	}
	parsed := gjson.Parse(line)
	if !parsed.IsObject() {
		return LineTypeUnknown
	}
	if parsed.Get("readings").Exists() {
		return LineTypeUWBFrame
	}
	if parsed.Get("gateway").IsObject() {
		return LineTypeStatus
	}
	return LineTypeUnknown
}

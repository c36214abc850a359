package logingest

import (
	"encoding/json"
	"regexp"
	"strconv"
)

type Keyword int

const (
	KeywordNone Keyword = iota
	KeywordProgress
	KeywordResult
	KeywordError
)

var (
	progressPattern = regexp.MustCompile(`PROGRESS=(\d+)`)
	resultPattern    = regexp.MustCompile(`RESULT=(?:'([^']*)'|({.*}))`)
	errorPattern     = regexp.MustCompile(`ERROR=(?:'([^']*)'|({.*}))`)
)

// ParseResult is the outcome of scanning one log line for in-band
// keywords. Matching is line-local: the regex does not tolerate embedded
// quotes or newlines inside the JSON body, matching the source (§9 open
// questions). PROGRESS=, RESULT=, and ERROR= are independent checks on the
// same line - the source runs all three as separate if-blocks, so a line
// carrying more than one keyword applies all of them, not just the first.
type ParseResult struct {
	// Keyword is the highest-priority keyword found (Progress > Result >
	// Error), kept for callers that only care about one match; the
	// Has* flags below are what a caller applying every match should use.
	Keyword      Keyword
	HasProgress  bool
	Progress     int
	HasResult    bool
	Result       json.RawMessage
	HasError     bool
	ErrorMessage string
	// OutOfRange is set when a PROGRESS= value was found but fell outside
	// 0-100; the line is still written to the log, just not applied (B3).
	OutOfRange bool
}

// ParseLine applies §4.4's keyword parsing to a single log line, checking
// PROGRESS=, RESULT=, and ERROR= independently so all three can fire from
// one line.
func ParseLine(line string) ParseResult {
	var r ParseResult

	if m := progressPattern.FindStringSubmatch(line); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			if n < 0 || n > 100 {
				r.OutOfRange = true
			} else {
				r.HasProgress = true
				r.Progress = n
				r.Keyword = KeywordProgress
			}
		}
	}

	if m := resultPattern.FindStringSubmatch(line); m != nil {
		r.HasResult = true
		r.Result = extractJSON(m)
		if r.Keyword == KeywordNone {
			r.Keyword = KeywordResult
		}
	}

	if m := errorPattern.FindStringSubmatch(line); m != nil {
		r.HasError = true
		r.ErrorMessage = extractErrorMessage(m)
		if r.Keyword == KeywordNone {
			r.Keyword = KeywordError
		}
	}

	return r
}

// extractJSON turns a quoted-string or bare-JSON capture into a RawMessage.
// A quoted capture is encoded as a JSON string value; a bare capture is
// used verbatim since it is already a JSON object.
func extractJSON(m []string) json.RawMessage {
	if m[2] != "" {
		return json.RawMessage(m[2])
	}
	raw, _ := json.Marshal(m[1])
	return json.RawMessage(raw)
}

// extractErrorMessage implements ERROR='s precedence rule: a JSON object's
// "message" field wins if present, otherwise the whole object is
// serialized as the message; a plain quoted string is used as-is.
func extractErrorMessage(m []string) string {
	if m[2] != "" {
		var obj map[string]any
		if err := json.Unmarshal([]byte(m[2]), &obj); err == nil {
			if msg, ok := obj["message"].(string); ok {
				return msg
			}
		}
		return m[2]
	}
	return m[1]
}

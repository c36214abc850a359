package logingest

import "testing"

func TestParseLineProgress(t *testing.T) {
	r := ParseLine("step 3 PROGRESS=42 done")
	if r.Keyword != KeywordProgress || r.Progress != 42 {
		t.Fatalf("expected progress=42, got %+v", r)
	}
}

func TestParseLineProgressOutOfRange(t *testing.T) {
	r := ParseLine("PROGRESS=150")
	if r.Keyword != KeywordNone || !r.OutOfRange {
		t.Fatalf("expected out-of-range progress to be flagged, got %+v", r)
	}
}

func TestParseLineResultBareJSON(t *testing.T) {
	r := ParseLine(`RESULT={"rows":12}`)
	if r.Keyword != KeywordResult {
		t.Fatalf("expected result keyword, got %+v", r)
	}
	if string(r.Result) != `{"rows":12}` {
		t.Fatalf("expected raw JSON passthrough, got %s", r.Result)
	}
}

func TestParseLineResultQuotedString(t *testing.T) {
	r := ParseLine(`RESULT='all good'`)
	if r.Keyword != KeywordResult {
		t.Fatalf("expected result keyword, got %+v", r)
	}
	if string(r.Result) != `"all good"` {
		t.Fatalf("expected quoted string encoded as JSON string, got %s", r.Result)
	}
}

func TestParseLineErrorJSONWithMessage(t *testing.T) {
	r := ParseLine(`ERROR={"message":"nope","code":7}`)
	if r.Keyword != KeywordError {
		t.Fatalf("expected error keyword, got %+v", r)
	}
	if r.ErrorMessage != "nope" {
		t.Fatalf("expected message field extracted, got %q", r.ErrorMessage)
	}
}

func TestParseLineErrorJSONWithoutMessage(t *testing.T) {
	r := ParseLine(`ERROR={"code":7}`)
	if r.Keyword != KeywordError {
		t.Fatalf("expected error keyword, got %+v", r)
	}
	if r.ErrorMessage != `{"code":7}` {
		t.Fatalf("expected whole object serialized, got %q", r.ErrorMessage)
	}
}

func TestParseLineErrorQuotedString(t *testing.T) {
	r := ParseLine(`ERROR='disk full'`)
	if r.Keyword != KeywordError {
		t.Fatalf("expected error keyword, got %+v", r)
	}
	if r.ErrorMessage != "disk full" {
		t.Fatalf("expected plain message, got %q", r.ErrorMessage)
	}
}

func TestParseLineNoKeyword(t *testing.T) {
	r := ParseLine("just a regular line of output")
	if r.Keyword != KeywordNone || r.OutOfRange {
		t.Fatalf("expected no keyword match, got %+v", r)
	}
}

func TestJobIDFromExecutionID(t *testing.T) {
	id, ok := jobIDFromExecutionID("default:42")
	if !ok || id != 42 {
		t.Fatalf("expected job id 42, got %d ok=%v", id, ok)
	}

	if _, ok := jobIDFromExecutionID("no-colon"); ok {
		t.Fatalf("expected malformed execution id to be rejected")
	}
}

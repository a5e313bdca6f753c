package toolchain

import (
	"testing"
)

const sampleStream = `{"reason":"compiler-artifact","package_id":"firmware 0.1.0","fresh":true}
not json at all
{"reason":"compiler-message","message":{"level":"warning","message":"unused variable: ` + "`dt`" + `","code":{"code":"unused_variables"},"spans":[{"file_name":"src/fusion.rs","line_start":42,"column_start":9,"is_primary":true}]}}
{"reason":"compiler-message","message":{"level":"error","message":"cannot find type ` + "`Radio`" + ` in this scope","code":{"code":"E0412"},"spans":[{"file_name":"src/net/wifi.rs","line_start":7,"column_start":15,"is_primary":false},{"file_name":"src/net/wifi.rs","line_start":12,"column_start":20,"is_primary":true}]}}
{"reason":"compiler-message","message":{"level":"help","message":"consider importing","spans":[]}}
{"reason":"build-finished","success":false}
`

func TestParseDiagnostics(t *testing.T) {
	findings := ParseDiagnostics(sampleStream)
	if len(findings) != 2 {
		t.Fatalf("parsed %d findings, want 2 (help level and non-messages skipped)", len(findings))
	}

	warn := findings[0]
	if warn.Level != LevelWarning || warn.Code != "unused_variables" {
		t.Errorf("first finding = %+v, want unused_variables warning", warn)
	}
	if warn.File != "src/fusion.rs" || warn.Line != 42 || warn.Column != 9 {
		t.Errorf("first finding location = %s:%d:%d, want src/fusion.rs:42:9",
			warn.File, warn.Line, warn.Column)
	}

	errf := findings[1]
	if errf.Level != LevelError || errf.Code != "E0412" {
		t.Errorf("second finding = %+v, want E0412 error", errf)
	}
	// The primary span wins over earlier non-primary spans.
	if errf.Line != 12 || errf.Column != 20 {
		t.Errorf("second finding location = %d:%d, want primary span 12:20", errf.Line, errf.Column)
	}
}

func TestParseDiagnostics_EmptyAndGarbage(t *testing.T) {
	if got := ParseDiagnostics(""); got != nil {
		t.Errorf("empty input produced %v", got)
	}
	if got := ParseDiagnostics("Compiling firmware v0.1.0\nFinished dev\n"); got != nil {
		t.Errorf("progress-only input produced %v", got)
	}
}

func TestCountByLevel(t *testing.T) {
	findings := []Finding{
		{Level: LevelError},
		{Level: LevelWarning},
		{Level: LevelWarning},
		{Level: LevelNote},
	}
	counts := CountByLevel(findings)
	if counts[LevelError] != 1 || counts[LevelWarning] != 2 || counts[LevelNote] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

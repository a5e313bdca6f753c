package toolchain

import (
	"bufio"
	"encoding/json"
	"strings"
)

// cargoMessage is one line of cargo's --message-format=json stream. Only
// the fields the matrix cares about are decoded.
type cargoMessage struct {
	Reason  string `json:"reason"`
	Message *struct {
		Level   string `json:"level"`
		Message string `json:"message"`
		Code    *struct {
			Code string `json:"code"`
		} `json:"code"`
		Spans []struct {
			FileName    string `json:"file_name"`
			LineStart   int    `json:"line_start"`
			ColumnStart int    `json:"column_start"`
			IsPrimary   bool   `json:"is_primary"`
		} `json:"spans"`
	} `json:"message"`
}

// ParseDiagnostics extracts findings from a JSON message stream, one
// object per line. Lines that are not valid JSON or not compiler
// messages are skipped; the toolchain interleaves progress lines with
// diagnostics and a parse failure must not fail the check.
func ParseDiagnostics(output string) []Finding {
	var findings []Finding

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] != '{' {
			continue
		}

		var msg cargoMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		if msg.Reason != "compiler-message" || msg.Message == nil {
			continue
		}

		level := FindingLevel(msg.Message.Level)
		switch level {
		case LevelError, LevelWarning, LevelNote:
		case "error: internal compiler error":
			level = LevelError
		default:
			continue
		}

		f := Finding{
			Level:   level,
			Message: msg.Message.Message,
		}
		if msg.Message.Code != nil {
			f.Code = msg.Message.Code.Code
		}
		for _, span := range msg.Message.Spans {
			if span.IsPrimary {
				f.File = span.FileName
				f.Line = span.LineStart
				f.Column = span.ColumnStart
				break
			}
		}
		findings = append(findings, f)
	}

	return findings
}

// CountByLevel tallies findings per level.
func CountByLevel(findings []Finding) map[FindingLevel]int {
	counts := make(map[FindingLevel]int)
	for _, f := range findings {
		counts[f.Level]++
	}
	return counts
}

package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/mcp-compliance-tester/internal/compliance"
)

// JSONFormatter emits the health report's stable JSON shape.
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) Write(w io.Writer, r *compliance.HealthReport) error {
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

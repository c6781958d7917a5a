package pipeline

import (
	"fmt"
	"strings"

	"github.com/leadgrid/lead-engine/internal/model"
)

// FormatReport renders a run summary for operators: batch counts, then the
// per-phase timing table.
func FormatReport(runID, source string, result *model.IngestRunResult) string {
	var b strings.Builder

	b.WriteString("# Ingest Run Report\n\n")
	b.WriteString(fmt.Sprintf("**Run:** %s\n", runID))
	b.WriteString(fmt.Sprintf("**Source:** %s\n\n", source))

	b.WriteString("## Outcome\n\n")
	b.WriteString("| Processed | Created | Merged | Rejected | Skipped | Assignments | Notified |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	b.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %d | %d | %d |\n\n",
		result.Processed, result.Created, result.Merged, result.Rejected,
		result.Skipped, result.Assignments, result.Notified,
	))

	if len(result.Phases) > 0 {
		b.WriteString("## Phases\n\n")
		b.WriteString("| Phase | Status | Duration |\n")
		b.WriteString("|---|---|---|\n")
		for _, ph := range result.Phases {
			line := fmt.Sprintf("| %s | %s | %dms |\n", ph.Name, ph.Status, ph.Duration)
			if ph.Error != "" {
				line = fmt.Sprintf("| %s | %s | %dms (%s) |\n", ph.Name, ph.Status, ph.Duration, ph.Error)
			}
			b.WriteString(line)
		}
	}

	return b.String()
}

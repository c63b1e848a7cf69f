package movement

import (
	"fmt"
	"time"
)

// PeriodKey returns the year-month bucket a document number is scoped to.
func PeriodKey(t time.Time) string {
	return t.Format("200601")
}

// FormatDocumentNumber renders a document number as {PREFIX}-{YYYYMM}{NNNN}.
func FormatDocumentNumber(prefix, period string, seq int64) string {
	return fmt.Sprintf("%s-%s%04d", prefix, period, seq)
}

package movement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPeriodKey(t *testing.T) {
	require.Equal(t, "202608", PeriodKey(time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)))
	require.Equal(t, "202601", PeriodKey(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestFormatDocumentNumber(t *testing.T) {
	require.Equal(t, "REC-2026080001", FormatDocumentNumber("REC", "202608", 1))
	require.Equal(t, "TRF-2026081234", FormatDocumentNumber("TRF", "202608", 1234))
	require.Equal(t, "ADJ-20260812345", FormatDocumentNumber("ADJ", "202608", 12345))
}

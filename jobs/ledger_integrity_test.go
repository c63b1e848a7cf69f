package jobs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stocktrail/stocktrail/internal/ledger"
)

func TestCheckEntriesCleanChain(t *testing.T) {
	entries := []ledger.Entry{
		{ID: 1, ProductID: 1, LocationID: 10, Quantity: 50, PreviousStock: 0, NewStock: 50},
		{ID: 2, ProductID: 1, LocationID: 10, Quantity: -5, PreviousStock: 50, NewStock: 45},
		{ID: 3, ProductID: 1, LocationID: 10, Quantity: -20, PreviousStock: 45, NewStock: 25},
		{ID: 4, ProductID: 2, LocationID: 10, Quantity: 7, PreviousStock: 0, NewStock: 7},
	}
	require.Empty(t, CheckEntries(entries))
}

func TestCheckEntriesArithmeticViolation(t *testing.T) {
	entries := []ledger.Entry{
		{ID: 1, ProductID: 1, LocationID: 10, Quantity: 50, PreviousStock: 0, NewStock: 49},
	}
	violations := CheckEntries(entries)
	require.Len(t, violations, 1)
	require.EqualValues(t, 1, violations[0].EntryID)
	require.Contains(t, violations[0].Detail, "new_stock")
}

func TestCheckEntriesBrokenChain(t *testing.T) {
	entries := []ledger.Entry{
		{ID: 1, ProductID: 1, LocationID: 10, Quantity: 50, PreviousStock: 0, NewStock: 50},
		{ID: 2, ProductID: 1, LocationID: 10, Quantity: -5, PreviousStock: 40, NewStock: 35},
	}
	violations := CheckEntries(entries)
	require.Len(t, violations, 1)
	require.EqualValues(t, 2, violations[0].EntryID)
	require.Contains(t, violations[0].Detail, "does not continue chain")
}

func TestCheckEntriesIndependentChains(t *testing.T) {
	entries := []ledger.Entry{
		{ID: 1, ProductID: 1, LocationID: 10, Quantity: 50, PreviousStock: 0, NewStock: 50},
		{ID: 2, ProductID: 1, LocationID: 11, Quantity: 3, PreviousStock: 0, NewStock: 3},
		{ID: 3, ProductID: 1, LocationID: 10, Quantity: -10, PreviousStock: 50, NewStock: 40},
	}
	require.Empty(t, CheckEntries(entries))
}

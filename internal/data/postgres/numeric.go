package postgres

import (
	"fmt"
	"strconv"
)

// Amounts are stored as NUMERIC(20,0) so the full uint64 range fits. They
// travel as decimal text in both directions.

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stored amount %q: %w", s, err)
	}
	return v, nil
}

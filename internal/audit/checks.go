// internal/audit/checks.go
package audit

import (
	"context"
	"strconv"
)

// LedgerChecks are the invariants every committed state must satisfy.
func LedgerChecks(q Querier) []Check {
	count := func(query string) func(context.Context) (float64, error) {
		return func(ctx context.Context) (float64, error) {
			return q.QueryFloat(ctx, query)
		}
	}
	none := Threshold{Operator: "==", Value: 0}

	return []Check{
		{
			Name:        "copy_availability_consistent",
			Description: "a copy is available iff no open loan references it",
			Query: count(`
				SELECT COUNT(*) FROM book_copies c
				WHERE c.available = (EXISTS (
					SELECT 1 FROM loans l
					WHERE l.book_copy_id = c.id AND l.actual_return_date IS NULL
				))`),
			Threshold: none,
		},
		{
			Name:        "single_open_loan_per_copy",
			Description: "no copy has more than one open loan",
			Query: count(`
				SELECT COUNT(*) FROM (
					SELECT book_copy_id FROM loans
					WHERE actual_return_date IS NULL
					GROUP BY book_copy_id
					HAVING COUNT(*) > 1
				) dup`),
			Threshold: none,
		},
		{
			Name:        "loan_dates_ordered",
			Description: "no loan is due or returned before it was made",
			Query: count(`
				SELECT COUNT(*) FROM loans
				WHERE expected_return_date < loan_date
				   OR (actual_return_date IS NOT NULL AND actual_return_date < loan_date)`),
			Threshold: none,
		},
		{
			Name:        "fine_settlement_consistent",
			Description: "settled fines carry a settlement date and active ones do not",
			Query: count(`
				SELECT COUNT(*) FROM fines
				WHERE (status = 'active' AND settled_at IS NOT NULL)
				   OR (status <> 'active' AND settled_at IS NULL)`),
			Threshold: none,
		},
		{
			Name:        "fine_amounts_non_negative",
			Description: "no fine has a negative amount",
			Query:       count(`SELECT COUNT(*) FROM fines WHERE amount < 0`),
			Threshold:   none,
		},
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

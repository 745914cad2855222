package circulation_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"pgregory.net/rapid"

	"libraledger/internal/apperr"
	"libraledger/internal/audit"
	"libraledger/internal/fines"
	"libraledger/internal/store/storetest"
)

// loanModel mirrors what the ledger should hold after each operation.
type loanModel struct {
	onLoan  map[string]uuid.UUID // barcode -> borrower
	due     map[string]time.Time
	owed    map[uuid.UUID][]uuid.UUID // member -> active fine ids
	members []uuid.UUID
	copies  []string
}

func (m *loanModel) activeLoans(member uuid.UUID) int {
	n := 0
	for _, b := range m.onLoan {
		if b == member {
			n++
		}
	}
	return n
}

func TestBorrowReturnMatchesModel(t *testing.T) {
	const maxActive = 2
	f := newFixture(t, options{maxActive: maxActive})

	var auditor *audit.Auditor
	if os.Getenv("TEST_DATABASE_URL") == "" {
		auditor = audit.NewAuditor(slog.New(slog.NewTextHandler(io.Discard, nil)))
		auditor.Register(audit.LedgerChecks(f.db)...)
	}

	run := 0
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		run++
		m := &loanModel{
			onLoan: map[string]uuid.UUID{},
			due:    map[string]time.Time{},
			owed:   map[uuid.UUID][]uuid.UUID{},
		}
		for i := 0; i < 3; i++ {
			m.members = append(m.members, storetest.SeedMember(t, f.db))
			barcode := fmt.Sprintf("P%d-%d", run, i)
			storetest.SeedCopy(t, f.db, "Book "+barcode, barcode)
			m.copies = append(m.copies, barcode)
		}

		rt.Repeat(map[string]func(*rapid.T){
			"borrow": func(rt *rapid.T) {
				member := rapid.SampledFrom(m.members).Draw(rt, "member")
				barcode := rapid.SampledFrom(m.copies).Draw(rt, "barcode")
				days := rapid.IntRange(1, 30).Draw(rt, "days")

				receipt, err := f.svc.Borrow(ctx, member, barcode, days)
				_, taken := m.onLoan[barcode]
				switch {
				case len(m.owed[member]) > 0:
					expectErr(rt, err, apperr.ErrOutstandingFine)
				case m.activeLoans(member) >= maxActive:
					expectErr(rt, err, apperr.ErrLoanLimitReached)
				case taken:
					expectErr(rt, err, apperr.ErrCopyUnavailable)
				default:
					if err != nil {
						rt.Fatalf("borrow %s: %v", barcode, err)
					}
					m.onLoan[barcode] = member
					m.due[barcode] = receipt.Loan.ExpectedReturnDate
				}
			},
			"return": func(rt *rapid.T) {
				barcode := rapid.SampledFrom(m.copies).Draw(rt, "barcode")

				summary, err := f.svc.Return(ctx, uuid.Nil, barcode)
				borrower, taken := m.onLoan[barcode]
				if !taken {
					expectErr(rt, err, apperr.ErrNoOpenLoan)
					return
				}
				if err != nil {
					rt.Fatalf("return %s: %v", barcode, err)
				}

				late := f.now.After(m.due[barcode])
				if summary.Late != late {
					rt.Fatalf("late = %v, want %v", summary.Late, late)
				}
				if late != (summary.Fine != nil) {
					rt.Fatalf("late return without fine or fine without late return")
				}
				if summary.Fine != nil {
					m.owed[borrower] = append(m.owed[borrower], summary.Fine.ID)
				}
				delete(m.onLoan, barcode)
				delete(m.due, barcode)
			},
			"advance": func(rt *rapid.T) {
				hours := rapid.IntRange(1, 20*24).Draw(rt, "hours")
				f.now = f.now.Add(time.Duration(hours) * time.Hour)
			},
			"pay": func(rt *rapid.T) {
				member := rapid.SampledFrom(m.members).Draw(rt, "member")
				if len(m.owed[member]) == 0 {
					rt.Skip("nothing owed")
				}
				if _, err := f.svc.PayFine(ctx, member, m.owed[member][0]); err != nil {
					rt.Fatalf("pay: %v", err)
				}
				m.owed[member] = m.owed[member][1:]
			},
			"": func(rt *rapid.T) {
				for _, barcode := range m.copies {
					_, taken := m.onLoan[barcode]
					if f.copyAvailable(t, barcode) == taken {
						rt.Fatalf("copy %s available flag disagrees with open loans", barcode)
					}
				}
				for _, member := range m.members {
					page, err := f.svc.ListActiveFines(ctx, member, fines.PageRequest{})
					if err != nil {
						rt.Fatalf("list fines: %v", err)
					}
					if page.Total != len(m.owed[member]) {
						rt.Fatalf("member has %d active fines, want %d", page.Total, len(m.owed[member]))
					}
				}
				if auditor != nil {
					if report := auditor.Run(ctx); !report.Healthy {
						rt.Fatalf("audit violations: %+v", report.Violations())
					}
				}
			},
		})
	})
}

func expectErr(rt *rapid.T, err, want error) {
	rt.Helper()
	if !errors.Is(err, want) {
		rt.Fatalf("got %v, want %v", err, want)
	}
}

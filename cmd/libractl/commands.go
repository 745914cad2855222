// cmd/libractl/commands.go
package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"libraledger/internal/fines"
)

func (a *app) print(w io.Writer, v any, human func()) error {
	if !a.asJSON {
		human()
		return nil
	}
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func uuidFlag(cmd *cobra.Command, name string) (uuid.UUID, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s: %w", name, err)
	}
	return id, nil
}

func newBorrowCmd(a *app) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "borrow",
		Short: "Lend a copy to a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			member, err := uuidFlag(cmd, "member")
			if err != nil {
				return err
			}
			barcode, _ := cmd.Flags().GetString("barcode")

			receipt, err := a.client().Borrow(cmd.Context(), member, barcode, days)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.print(out, receipt, func() {
				fmt.Fprintf(out, "Loan %s: %q due %s\n",
					receipt.Loan.ID, receipt.BookTitle, receipt.Loan.ExpectedReturnDate.Format("2006-01-02"))
			})
		},
	}
	cmd.Flags().String("member", "", "member id")
	cmd.Flags().String("barcode", "", "copy barcode")
	cmd.Flags().IntVar(&days, "days", 0, "loan length in days (default 15)")
	_ = cmd.MarkFlagRequired("member")
	_ = cmd.MarkFlagRequired("barcode")
	return cmd
}

func newReturnCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "return",
		Short: "Return a copy, charging an overdue fine when late",
		RunE: func(cmd *cobra.Command, args []string) error {
			member, err := uuidFlag(cmd, "member")
			if err != nil {
				return err
			}
			barcode, _ := cmd.Flags().GetString("barcode")

			summary, err := a.client().Return(cmd.Context(), member, barcode)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.print(out, summary, func() {
				fmt.Fprintln(out, summary.Message)
				if summary.Fine != nil {
					fmt.Fprintf(out, "Fine %s: %s\n", summary.Fine.ID, summary.Fine.Amount.StringFixed(2))
				}
			})
		},
	}
	cmd.Flags().String("member", "", "member id; omit for a desk return")
	cmd.Flags().String("barcode", "", "copy barcode")
	_ = cmd.MarkFlagRequired("barcode")
	return cmd
}

func newFinesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fines",
		Short: "Inspect and settle fines",
	}

	list := func(use, short string, history bool) *cobra.Command {
		var page fines.PageRequest
		c := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				member, err := uuidFlag(cmd, "member")
				if err != nil {
					return err
				}
				fetch := a.client().ActiveFines
				if history {
					fetch = a.client().FineHistory
				}
				result, err := fetch(cmd.Context(), member, page)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				return a.print(out, result, func() { printFines(out, result) })
			},
		}
		c.Flags().String("member", "", "member id")
		c.Flags().IntVar(&page.Page, "page", 0, "page number (default 1)")
		c.Flags().IntVar(&page.PageSize, "page-size", 0, "page size (default 20, max 100)")
		_ = c.MarkFlagRequired("member")
		return c
	}

	cmd.AddCommand(
		list("list", "List a member's active fines", false),
		list("history", "List all of a member's fines", true),
		newAssignFineCmd(a),
		newPayFineCmd(a),
		newRevokeFineCmd(a),
	)
	return cmd
}

func printFines(w io.Writer, page *fines.Page[fines.Fine]) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tAMOUNT\tSTATUS\tISSUED\tDESCRIPTION")
	for _, f := range page.Items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			f.ID, f.FineTypeID, f.Amount.StringFixed(2), f.Status, f.IssuedAt.Format("2006-01-02"), f.Description)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "page %d, %d of %d fine(s)\n", page.Page, len(page.Items), page.Total)
}

func newAssignFineCmd(a *app) *cobra.Command {
	var (
		fineType int64
		amount   string
		reason   string
	)
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Charge a member a manual fine",
		RunE: func(cmd *cobra.Command, args []string) error {
			member, err := uuidFlag(cmd, "member")
			if err != nil {
				return err
			}
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return fmt.Errorf("--amount: %w", err)
			}

			fine, err := a.client().AssignFine(cmd.Context(), member, fineType, reason, value)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.print(out, fine, func() {
				fmt.Fprintf(out, "Fine %s issued: %s\n", fine.ID, fine.Amount.StringFixed(2))
			})
		},
	}
	cmd.Flags().String("member", "", "member id")
	cmd.Flags().Int64Var(&fineType, "type", 0, "fine type id")
	cmd.Flags().StringVar(&amount, "amount", "", "amount, two decimal places at most")
	cmd.Flags().StringVar(&reason, "reason", "", "free text reason")
	_ = cmd.MarkFlagRequired("member")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newPayFineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Record payment of a fine",
		RunE: func(cmd *cobra.Command, args []string) error {
			member, err := uuidFlag(cmd, "member")
			if err != nil {
				return err
			}
			fineID, err := uuidFlag(cmd, "fine")
			if err != nil {
				return err
			}

			fine, err := a.client().PayFine(cmd.Context(), member, fineID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.print(out, fine, func() {
				fmt.Fprintf(out, "Fine %s paid\n", fine.ID)
			})
		},
	}
	cmd.Flags().String("member", "", "member id")
	cmd.Flags().String("fine", "", "fine id")
	_ = cmd.MarkFlagRequired("member")
	_ = cmd.MarkFlagRequired("fine")
	return cmd
}

func newRevokeFineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Waive a fine",
		RunE: func(cmd *cobra.Command, args []string) error {
			fineID, err := uuidFlag(cmd, "fine")
			if err != nil {
				return err
			}

			fine, err := a.client().RevokeFine(cmd.Context(), fineID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.print(out, fine, func() {
				fmt.Fprintf(out, "Fine %s revoked\n", fine.ID)
			})
		},
	}
	cmd.Flags().String("fine", "", "fine id")
	_ = cmd.MarkFlagRequired("fine")
	return cmd
}

func newMemberCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage members",
	}

	var email, name string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a member; the password is prompted for",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := promptPassword(cmd, fmt.Sprintf("Enter password for %s: ", email))
			if err != nil {
				return err
			}
			if password == "" {
				return fmt.Errorf("password cannot be empty")
			}

			member, err := a.client().RegisterMember(cmd.Context(), email, name, password)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.print(out, member, func() {
				fmt.Fprintf(out, "Registered member %q with ID %s\n", member.Name, member.ID)
			})
		},
	}
	register.Flags().StringVar(&email, "email", "", "email address")
	register.Flags().StringVar(&name, "name", "", "display name")
	_ = register.MarkFlagRequired("email")
	_ = register.MarkFlagRequired("name")

	cmd.AddCommand(register)
	return cmd
}

func newCopyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <barcode>",
		Short: "Show a copy and whether it is on the shelf",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := a.client().GetCopy(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return a.print(out, details, func() {
				state := "on loan"
				if details.Available {
					state = "available"
				}
				fmt.Fprintf(out, "%s  %q by %s  %s\n", details.Barcode, details.Title, details.Author, state)
			})
		},
	}
}

package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"bizledger-backend/internal/customer"
	"bizledger-backend/internal/database"
	"bizledger-backend/internal/ledger"
	"bizledger-backend/internal/logger"
	"bizledger-backend/internal/models"
	"bizledger-backend/internal/transaction"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := database.Migrate(db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var recalcCmd = &cobra.Command{
	Use:   "recalc",
	Short: "Re-derive customer totals from their transactions",
	Long: `Recomputes total spent, outstanding balance, deposit balance and last
purchase for every customer and reports the ones whose stored values had
drifted. Without --business every business is processed.`,
	Example: `  ledgerctl recalc
  ledgerctl recalc --business 3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		businessID, _ := cmd.Flags().GetUint("business")

		svc := transaction.NewService(db, ledger.NewRules(), logger.WithComponent("recalc"))
		drifts, err := svc.RecalculateAll(cmd.Context(), businessID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(drifts) == 0 {
			fmt.Fprintln(out, "all customer totals are consistent")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CUSTOMER\tNAME\tSTORED BALANCE\tDERIVED BALANCE")
		for _, d := range drifts {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", d.CustomerID, d.Name,
				d.Stored.OutstandingBalance.StringFixed(2), d.Derived.OutstandingBalance.StringFixed(2))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d customers repaired\n", len(drifts))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import-contacts",
	Short: "Import customers from an .xlsx contact sheet",
	Long: `Reads the first sheet of an .xlsx file whose header row names the
columns (name, phone, email, company, job title, nickname, address) and
adds every contact whose phone number is new to the business. The import
is recorded in the audit log under the given user.`,
	Example: `  ledgerctl import-contacts --business 1 --user 1 --file contacts.xlsx`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		businessID, _ := cmd.Flags().GetUint("business")
		userID, _ := cmd.Flags().GetUint("user")
		path, _ := cmd.Flags().GetString("file")

		var user models.User
		err := db.WithContext(cmd.Context()).Where("id = ? AND business_id = ?", userID, businessID).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("user %d does not belong to business %d", userID, businessID)
		}
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		contacts, err := customer.ParseContactsXLSX(f)
		if err != nil {
			return err
		}

		actor := models.Actor{UserID: user.ID, UserName: user.Name, BusinessID: businessID, Role: user.Role}
		res, err := customer.NewService(db).Import(cmd.Context(), actor, contacts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "created %d, skipped %d existing, %d invalid\n", res.Created, res.Skipped, len(res.Errors))
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  row %d (%s): %s\n", e.Row+1, e.Name, e.Message) // +1 for the header row
		}
		return nil
	},
}

var statementCmd = &cobra.Command{
	Use:     "statement",
	Short:   "Print a customer's transactions with the running balance",
	Example: `  ledgerctl statement --business 1 --customer 42`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		businessID, _ := cmd.Flags().GetUint("business")
		customerID, _ := cmd.Flags().GetUint("customer")

		svc := transaction.NewService(db, ledger.NewRules(), logger.WithComponent("statement"))
		st, err := svc.Statement(cmd.Context(), businessID, customerID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s)\n\n", st.Customer.Name, st.Customer.Phone)

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "DATE\tTYPE\tMETHOD\tAMOUNT\tSTATUS\tIMPACT\tBALANCE\t")
		for _, l := range st.Lines {
			t := l.Transaction
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				t.Date.Format("2006-01-02"), t.Type, t.PaymentMethod, t.Amount.StringFixed(2),
				t.Status, l.Balance.Impact.StringFixed(2), l.Balance.After.StringFixed(2))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Fprintf(out, "\noutstanding %s, total spent %s, deposits %s\n",
			st.Customer.OutstandingBalance.StringFixed(2),
			st.Customer.TotalSpent.StringFixed(2),
			st.Customer.DepositBalance.StringFixed(2))
		return nil
	},
}

func init() {
	recalcCmd.Flags().Uint("business", 0, "only this business")

	importCmd.Flags().Uint("business", 0, "business to import into")
	importCmd.Flags().Uint("user", 0, "user recorded as the importer")
	importCmd.Flags().String("file", "", "path to the .xlsx file")
	importCmd.MarkFlagRequired("business")
	importCmd.MarkFlagRequired("user")
	importCmd.MarkFlagRequired("file")

	statementCmd.Flags().Uint("business", 0, "business the customer belongs to")
	statementCmd.Flags().Uint("customer", 0, "customer id")
	statementCmd.MarkFlagRequired("business")
	statementCmd.MarkFlagRequired("customer")

	rootCmd.AddCommand(migrateCmd, recalcCmd, importCmd, statementCmd)
}

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bizledger-backend/internal/database"
	"bizledger-backend/internal/ledger"
	"bizledger-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("ledgerctl %s: %v", strings.Join(args, " "), err)
	}
	return out.String()
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("LOG_LEVEL", "error")

	if out := run(t, "migrate"); !strings.Contains(out, "migrations applied") {
		t.Fatalf("migrate output = %q", out)
	}

	seed, err := database.OpenSQLite(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	biz := models.Business{Name: "Shop", Currency: "NGN"}
	seed.Create(&biz)
	user := models.User{BusinessID: biz.ID, Name: "Owner", Email: "o@example.com", PasswordHash: "x", Role: models.RoleOwner}
	seed.Create(&user)
	cust := models.Customer{BusinessID: biz.ID, Name: "Ada", Phone: "08010000000", OutstandingBalance: decimal.NewFromInt(5)}
	seed.Create(&cust)
	seed.Create(&models.Transaction{
		BusinessID: biz.ID, CustomerID: cust.ID, Type: ledger.TypeSale, PaymentMethod: ledger.MethodCredit,
		Amount: decimal.NewFromInt(2500), Status: ledger.StatusPending, DebtImpact: decimal.NewFromInt(2500),
		Date: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC),
	})
	database.Close(seed)

	out := run(t, "recalc")
	if !strings.Contains(out, "1 customers repaired") || !strings.Contains(out, "2500.00") {
		t.Errorf("recalc output = %q", out)
	}
	if out := run(t, "recalc", "--business", "1"); !strings.Contains(out, "consistent") {
		t.Errorf("second recalc output = %q", out)
	}

	out = run(t, "statement", "--business", "1", "--customer", "1")
	if !strings.Contains(out, "2025-04-01") || !strings.Contains(out, "outstanding 2500.00") {
		t.Errorf("statement output = %q", out)
	}

	xlsx := filepath.Join(dir, "contacts.xlsx")
	f := excelize.NewFile()
	f.SetSheetRow("Sheet1", "A1", &[]any{"Name", "Phone", "Email"})
	f.SetSheetRow("Sheet1", "A2", &[]any{"Bisi", "08020000000", "bisi@example.com"})
	f.SetSheetRow("Sheet1", "A3", &[]any{"Ada again", "0801 000 0000", ""})
	f.SetSheetRow("Sheet1", "A4", &[]any{"No Phone", "", ""})
	if err := f.SaveAs(xlsx); err != nil {
		t.Fatal(err)
	}

	out = run(t, "import-contacts", "--business", "1", "--user", "1", "--file", xlsx)
	if !strings.Contains(out, "created 1, skipped 1 existing, 1 invalid") {
		t.Errorf("import output = %q", out)
	}
}

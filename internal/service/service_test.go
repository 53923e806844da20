package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"civlily/backend/internal/cache"
	"civlily/backend/internal/domain"
	"civlily/backend/internal/store"
	"civlily/backend/internal/store/memory"
)

func newTestService() (*Service, *memory.Store) {
	repo := memory.NewSeeded()
	svc := New(repo, cache.NoopSnapshotCache{}, "b-main")
	return svc, repo
}

func stockAt(t *testing.T, repo *memory.Store, branchID string, productID string) int {
	t.Helper()
	stockMap, err := repo.GetStockMap(context.Background(), branchID, []string{productID})
	if err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return stockMap[productID]
}

func TestRecordSaleDecrementsLedgerAndComputesTotals(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		BranchID:      "b-main",
		PaymentMethod: "cash",
		Paid:          decimal.NewFromInt(30000),
		Items: []domain.SaleItemRequest{
			{ProductID: "p-001", Qty: 2}, // 2 x 12000
		},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}

	if !sale.Total.Equal(decimal.NewFromInt(24000)) {
		t.Fatalf("expected total 24000, got %s", sale.Total)
	}
	if !sale.Change.Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("expected change 6000, got %s", sale.Change)
	}
	if !strings.HasPrefix(sale.Code, "S-") {
		t.Fatalf("expected sale code with S- prefix, got %s", sale.Code)
	}
	if sale.CustomerName != "Walk-in Customer" {
		t.Fatalf("expected walk-in customer snapshot, got %q", sale.CustomerName)
	}
	if got := stockAt(t, repo, "b-main", "p-001"); got != 48 {
		t.Fatalf("expected stock 48 after sale, got %d", got)
	}
}

func TestRecordSaleAggregatesDuplicateLines(t *testing.T) {
	svc, repo := newTestService()

	sale, err := svc.RecordSale(context.Background(), domain.SaleCreateRequest{
		BranchID: "b-main",
		Paid:     decimal.NewFromInt(100000),
		Items: []domain.SaleItemRequest{
			{ProductID: "p-002", Qty: 1},
			{ProductID: "p-002", Qty: 2},
		},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if len(sale.Items) != 1 || sale.Items[0].Qty != 3 {
		t.Fatalf("expected one aggregated line with qty 3, got %+v", sale.Items)
	}
	if got := stockAt(t, repo, "b-main", "p-002"); got != 47 {
		t.Fatalf("expected stock 47, got %d", got)
	}
}

func TestRecordSaleFailsWholeSaleOnOneShortLine(t *testing.T) {
	svc, repo := newTestService()

	// Second line asks for more than the branch holds; the first line must
	// not be decremented either.
	_, err := svc.RecordSale(context.Background(), domain.SaleCreateRequest{
		BranchID: "b-main",
		Paid:     decimal.NewFromInt(1000000),
		Items: []domain.SaleItemRequest{
			{ProductID: "p-001", Qty: 1},
			{ProductID: "p-002", Qty: 51},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Cooking Oil 1L") {
		t.Fatalf("expected product name in error, got %q", err.Error())
	}
	if got := stockAt(t, repo, "b-main", "p-001"); got != 50 {
		t.Fatalf("expected untouched stock 50, got %d", got)
	}
	if got := stockAt(t, repo, "b-main", "p-002"); got != 50 {
		t.Fatalf("expected untouched stock 50, got %d", got)
	}
}

func TestRecordSaleValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, domain.SaleCreateRequest{BranchID: "b-main"})
	if !errors.Is(err, store.ErrEmptyCart) {
		t.Fatalf("expected empty cart error, got %v", err)
	}

	_, err = svc.RecordSale(ctx, domain.SaleCreateRequest{
		BranchID: "b-main",
		Items:    []domain.SaleItemRequest{{ProductID: "p-404", Qty: 1}},
	})
	if !errors.Is(err, store.ErrUnknownProduct) {
		t.Fatalf("expected unknown product error, got %v", err)
	}

	_, err = svc.RecordSale(ctx, domain.SaleCreateRequest{
		BranchID: "b-main",
		Items:    []domain.SaleItemRequest{{ProductID: "p-001", Qty: 0}},
	})
	if !errors.Is(err, store.ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity error, got %v", err)
	}

	_, err = svc.RecordSale(ctx, domain.SaleCreateRequest{
		BranchID:   "b-main",
		CustomerID: "c-404",
		Items:      []domain.SaleItemRequest{{ProductID: "p-001", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidCustomer) {
		t.Fatalf("expected invalid customer error, got %v", err)
	}

	_, err = svc.RecordSale(ctx, domain.SaleCreateRequest{
		BranchID: "b-404",
		Items:    []domain.SaleItemRequest{{ProductID: "p-001", Qty: 1}},
	})
	if !errors.Is(err, store.ErrMissingBranch) {
		t.Fatalf("expected missing branch error, got %v", err)
	}
}

func TestRecordSaleFailsWhenWalkInCustomerMissing(t *testing.T) {
	repo := memory.NewEmpty()
	svc := New(repo, cache.NoopSnapshotCache{}, "b-1")
	ctx := context.Background()

	if _, err := repo.CreateBranch(ctx, domain.Branch{ID: "b-1", Name: "One"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	product := domain.Product{ID: "p-a", Code: "P-A", Name: "Widget", SellingPrice: decimal.NewFromInt(100)}
	if _, err := repo.CreateProduct(ctx, product, "b-1", 10); err != nil {
		t.Fatalf("create product: %v", err)
	}

	// No customers exist, so an omitted customer id has nothing to resolve
	// to and the sale must be rejected.
	_, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		BranchID: "b-1",
		Paid:     decimal.NewFromInt(100),
		Items:    []domain.SaleItemRequest{{ProductID: "p-a", Qty: 1}},
	})
	if !errors.Is(err, store.ErrInvalidCustomer) {
		t.Fatalf("expected invalid customer error, got %v", err)
	}

	stockMap, _ := repo.GetStockMap(ctx, "b-1", []string{"p-a"})
	if stockMap["p-a"] != 10 {
		t.Fatalf("rejected sale mutated the ledger: %d", stockMap["p-a"])
	}
}

func TestRecordSaleClampsChangeAtZero(t *testing.T) {
	svc, _ := newTestService()

	sale, err := svc.RecordSale(context.Background(), domain.SaleCreateRequest{
		BranchID: "b-main",
		Paid:     decimal.NewFromInt(10000), // total is 12000
		Items:    []domain.SaleItemRequest{{ProductID: "p-001", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if !sale.Change.IsZero() {
		t.Fatalf("expected zero change for underpayment, got %s", sale.Change)
	}
}

func TestSetStockClampsNegativeToZero(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	err := svc.SetStock(ctx, domain.SetStockRequest{BranchID: "b-main", ProductID: "p-003", Quantity: -7})
	if err != nil {
		t.Fatalf("set stock failed: %v", err)
	}
	if got := stockAt(t, repo, "b-main", "p-003"); got != 0 {
		t.Fatalf("expected clamped stock 0, got %d", got)
	}

	err = svc.SetStock(ctx, domain.SetStockRequest{BranchID: "b-main", ProductID: "p-404", Quantity: 5})
	if !errors.Is(err, store.ErrUnknownProduct) {
		t.Fatalf("expected unknown product error, got %v", err)
	}
}

func TestTransferLifecycleMovesStockExactlyOnce(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	transfer, err := svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		ProductID:    "p-001",
		FromBranchID: "b-main",
		ToBranchID:   "b-east",
		Qty:          10,
	})
	if err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}
	if transfer.Status != domain.TransferStatusPending || transfer.Applied {
		t.Fatalf("expected fresh pending transfer, got status=%s applied=%v", transfer.Status, transfer.Applied)
	}
	if got := stockAt(t, repo, "b-main", "p-001"); got != 50 {
		t.Fatalf("creation must not move stock, got %d", got)
	}

	if _, err := svc.AdvanceTransferStatus(ctx, transfer.ID, "APPROVED"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if got := stockAt(t, repo, "b-main", "p-001"); got != 50 {
		t.Fatalf("approval must not move stock, got %d", got)
	}

	completed, err := svc.AdvanceTransferStatus(ctx, transfer.ID, "completed")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if !completed.Applied {
		t.Fatalf("expected applied transfer after completion")
	}
	if got := stockAt(t, repo, "b-main", "p-001"); got != 40 {
		t.Fatalf("expected source 40 after completion, got %d", got)
	}
	if got := stockAt(t, repo, "b-east", "p-001"); got != 30 {
		t.Fatalf("expected destination 30 after completion, got %d", got)
	}

	// Completing again must be a status-only no-op on the ledger.
	again, err := svc.AdvanceTransferStatus(ctx, transfer.ID, "COMPLETED")
	if err != nil {
		t.Fatalf("re-complete failed: %v", err)
	}
	if !again.Applied {
		t.Fatalf("expected transfer to stay applied")
	}
	if got := stockAt(t, repo, "b-main", "p-001"); got != 40 {
		t.Fatalf("re-completion moved stock again, got %d", got)
	}
	if got := stockAt(t, repo, "b-east", "p-001"); got != 30 {
		t.Fatalf("re-completion moved stock again, got %d", got)
	}

	_, err = svc.AdvanceTransferStatus(ctx, transfer.ID, "PENDING")
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition error, got %v", err)
	}
}

func TestTransferSkippingApprovalStillAppliesOnce(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	transfer, err := svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		ProductID:    "p-005",
		FromBranchID: "b-east",
		ToBranchID:   "b-main",
		Qty:          5,
	})
	if err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}

	completed, err := svc.AdvanceTransferStatus(ctx, transfer.ID, "COMPLETED")
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if !completed.Applied {
		t.Fatalf("expected applied transfer")
	}
	if got := stockAt(t, repo, "b-east", "p-005"); got != 15 {
		t.Fatalf("expected source 15, got %d", got)
	}
	if got := stockAt(t, repo, "b-main", "p-005"); got != 55 {
		t.Fatalf("expected destination 55, got %d", got)
	}
}

func TestTransferValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		ProductID: "p-001", FromBranchID: "b-main", ToBranchID: "b-main", Qty: 1,
	})
	if !errors.Is(err, store.ErrSameBranch) {
		t.Fatalf("expected same branch error, got %v", err)
	}

	_, err = svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		ProductID: "p-001", FromBranchID: "b-main", ToBranchID: "b-east", Qty: 0,
	})
	if !errors.Is(err, store.ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity error, got %v", err)
	}

	_, err = svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		ProductID: "p-001", FromBranchID: "b-main", ToBranchID: "b-east", Qty: 51,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}

	_, err = svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		ProductID: "p-404", FromBranchID: "b-main", ToBranchID: "b-east", Qty: 1,
	})
	if !errors.Is(err, store.ErrUnknownProduct) {
		t.Fatalf("expected unknown product error, got %v", err)
	}

	_, err = svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		ProductID: "p-001", FromBranchID: "b-404", ToBranchID: "b-east", Qty: 1,
	})
	if !errors.Is(err, store.ErrMissingBranch) {
		t.Fatalf("expected missing branch error, got %v", err)
	}

	_, err = svc.AdvanceTransferStatus(ctx, "tr-missing", "APPROVED")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}

	_, err = svc.AdvanceTransferStatus(ctx, "tr-missing", "SHIPPED")
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for unknown status, got %v", err)
	}
}

func TestAdvanceTransferStatusRejectsBrokenReferences(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	transfer, err := svc.CreateTransfer(ctx, domain.TransferCreateRequest{
		ProductID:    "p-003",
		FromBranchID: "b-main",
		ToBranchID:   "b-east",
		Qty:          5,
	})
	if err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}

	// The product disappears before the transfer advances. Even a
	// status-only move must notice.
	if err := repo.DeleteProduct(ctx, "p-003"); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	_, err = svc.AdvanceTransferStatus(ctx, transfer.ID, "APPROVED")
	if !errors.Is(err, store.ErrInvalidTransferData) {
		t.Fatalf("expected invalid transfer data, got %v", err)
	}
}

func TestCreateProductSeedsAllBranches(t *testing.T) {
	svc, repo := newTestService()

	product, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{
		Code:         "prd099",
		Name:         "Instant Noodles",
		Category:     "Grocery",
		CostPrice:    decimal.NewFromInt(2500),
		SellingPrice: decimal.NewFromInt(3500),
		BranchID:     "b-main",
		InitialStock: 40,
	})
	if err != nil {
		t.Fatalf("create product failed: %v", err)
	}
	if product.Code != "PRD099" {
		t.Fatalf("expected uppercased code, got %s", product.Code)
	}
	if got := stockAt(t, repo, "b-main", product.ID); got != 40 {
		t.Fatalf("expected initial stock 40 at creating branch, got %d", got)
	}
	if got := stockAt(t, repo, "b-east", product.ID); got != 0 {
		t.Fatalf("expected zero entry at other branch, got %d", got)
	}
}

func TestDailyReportAggregatesSalesAndExpenses(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		BranchID:      "b-main",
		PaymentMethod: "cash",
		Paid:          decimal.NewFromInt(12000),
		Items:         []domain.SaleItemRequest{{ProductID: "p-001", Qty: 1}},
	}); err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if _, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		BranchID:      "b-main",
		PaymentMethod: "qris",
		Paid:          decimal.NewFromInt(6500),
		Items:         []domain.SaleItemRequest{{ProductID: "p-002", Qty: 1}},
	}); err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if _, err := svc.CreateExpense(ctx, domain.ExpenseCreateRequest{
		BranchID: "b-main",
		Category: "utilities",
		Amount:   decimal.NewFromInt(5000),
	}); err != nil {
		t.Fatalf("create expense failed: %v", err)
	}

	report, err := svc.DailyReport(ctx, "b-main", "")
	if err != nil {
		t.Fatalf("daily report failed: %v", err)
	}
	if report.Sales != 2 {
		t.Fatalf("expected 2 sales, got %d", report.Sales)
	}
	if !report.GrossSales.Equal(decimal.NewFromInt(18500)) {
		t.Fatalf("expected gross 18500, got %s", report.GrossSales)
	}
	if !report.Expenses.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("expected expenses 5000, got %s", report.Expenses)
	}
	if len(report.ByPayment) != 2 {
		t.Fatalf("expected 2 payment buckets, got %d", len(report.ByPayment))
	}
}

func TestAuthenticateByStaffIDAndEmail(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateStaff(ctx, domain.StaffCreateRequest{
		StaffID:  "cash002",
		Name:     "Test Cashier",
		Email:    "Cashier@Civlily.Local",
		Password: "s3cret-pass",
		Role:     "cashier",
		BranchID: "b-east",
	}); err != nil {
		t.Fatalf("create staff failed: %v", err)
	}

	account, err := svc.Authenticate(ctx, "CASH002", "s3cret-pass")
	if err != nil {
		t.Fatalf("authenticate by staff id failed: %v", err)
	}
	if account.Role != domain.RoleCashier || account.BranchID != "b-east" {
		t.Fatalf("unexpected account %+v", account)
	}

	if _, err := svc.Authenticate(ctx, "cashier@civlily.local", "s3cret-pass"); err != nil {
		t.Fatalf("authenticate by email failed: %v", err)
	}

	_, err = svc.Authenticate(ctx, "CASH002", "wrong-pass")
	if !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	_, err = svc.Authenticate(ctx, "NOBODY", "s3cret-pass")
	if !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown login, got %v", err)
	}
}

func TestRestockSuggestionsFlagLowBranches(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	// Drain p-004 at b-east; b-main still holds 50 and can donate.
	if err := svc.SetStock(ctx, domain.SetStockRequest{BranchID: "b-east", ProductID: "p-004", Quantity: 2}); err != nil {
		t.Fatalf("set stock failed: %v", err)
	}

	suggestions, err := svc.RestockSuggestions(ctx, "b-east")
	if err != nil {
		t.Fatalf("restock suggestions failed: %v", err)
	}

	found := false
	for _, suggestion := range suggestions {
		if suggestion.ProductID != "p-004" {
			continue
		}
		found = true
		if suggestion.DonorBranchID != "b-main" {
			t.Fatalf("expected b-main donor, got %q", suggestion.DonorBranchID)
		}
		if suggestion.RecommendedQty < 1 {
			t.Fatalf("expected positive recommended qty, got %d", suggestion.RecommendedQty)
		}
	}
	if !found {
		t.Fatalf("expected a suggestion for p-004, got %+v", suggestions)
	}
}

func TestActorBranchScopesDefaults(t *testing.T) {
	svc, repo := newTestService()
	ctx := WithActor(context.Background(), domain.Actor{
		StaffID:  "CASH001",
		Role:     domain.RoleCashier,
		BranchID: "b-east",
	})

	sale, err := svc.RecordSale(ctx, domain.SaleCreateRequest{
		Paid:  decimal.NewFromInt(12000),
		Items: []domain.SaleItemRequest{{ProductID: "p-001", Qty: 1}},
	})
	if err != nil {
		t.Fatalf("record sale failed: %v", err)
	}
	if sale.BranchID != "b-east" {
		t.Fatalf("expected actor branch b-east, got %s", sale.BranchID)
	}
	if sale.CashierID != "CASH001" {
		t.Fatalf("expected cashier id snapshot, got %q", sale.CashierID)
	}
	if got := stockAt(t, repo, "b-east", "p-001"); got != 19 {
		t.Fatalf("expected east stock 19, got %d", got)
	}
}

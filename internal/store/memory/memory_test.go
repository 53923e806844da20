package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"civlily/backend/internal/domain"
	"civlily/backend/internal/store"
)

func seedBranchAndProduct(t *testing.T, s *Store, branchID string, productID string, qty int) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.GetBranchByID(ctx, branchID); errors.Is(err, store.ErrNotFound) {
		if _, err := s.CreateBranch(ctx, domain.Branch{ID: branchID, Name: branchID}); err != nil {
			t.Fatalf("create branch: %v", err)
		}
	}
	if _, err := s.GetProductByID(ctx, productID); errors.Is(err, store.ErrNotFound) {
		product := domain.Product{ID: productID, Code: productID, Name: productID, SellingPrice: decimal.NewFromInt(100)}
		if _, err := s.CreateProduct(ctx, product, branchID, 0); err != nil {
			t.Fatalf("create product: %v", err)
		}
	}
	if err := s.SetStock(ctx, branchID, productID, qty); err != nil {
		t.Fatalf("set stock: %v", err)
	}
}

func TestCreateSaleIsAtomicAcrossLines(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedBranchAndProduct(t, s, "b-1", "p-a", 10)
	seedBranchAndProduct(t, s, "b-1", "p-b", 1)

	_, err := s.CreateSale(ctx, domain.Sale{
		ID:       "sale-1",
		BranchID: "b-1",
		Items: []domain.SaleLine{
			{ProductID: "p-a", Qty: 5},
			{ProductID: "p-b", Qty: 2},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	stockMap, err := s.GetStockMap(ctx, "b-1", []string{"p-a", "p-b"})
	if err != nil {
		t.Fatalf("get stock map: %v", err)
	}
	if stockMap["p-a"] != 10 || stockMap["p-b"] != 1 {
		t.Fatalf("failed sale mutated the ledger: %+v", stockMap)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{
		ID:       "sale-2",
		BranchID: "b-1",
		Items: []domain.SaleLine{
			{ProductID: "p-a", Qty: 5},
			{ProductID: "p-b", Qty: 1},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.ID != "sale-2" {
		t.Fatalf("unexpected sale id %s", sale.ID)
	}

	stockMap, _ = s.GetStockMap(ctx, "b-1", []string{"p-a", "p-b"})
	if stockMap["p-a"] != 5 || stockMap["p-b"] != 0 {
		t.Fatalf("expected 5/0 after sale, got %+v", stockMap)
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedBranchAndProduct(t, s, "b-1", "p-a", 7)

	const attempts = 20
	var wg sync.WaitGroup
	var successes, shortfalls atomic.Int32

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.CreateSale(ctx, domain.Sale{
				ID:       fmt.Sprintf("sale-%d", n),
				BranchID: "b-1",
				Items:    []domain.SaleLine{{ProductID: "p-a", Qty: 1}},
			})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, store.ErrInsufficientStock):
				shortfalls.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes.Load() != 7 || shortfalls.Load() != attempts-7 {
		t.Fatalf("expected 7 successes and %d shortfalls, got %d/%d", attempts-7, successes.Load(), shortfalls.Load())
	}
	stockMap, _ := s.GetStockMap(ctx, "b-1", []string{"p-a"})
	if stockMap["p-a"] != 0 {
		t.Fatalf("expected stock drained to exactly zero, got %d", stockMap["p-a"])
	}
}

func TestGetStockMapReportsZeroForMissingEntries(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedBranchAndProduct(t, s, "b-1", "p-a", 3)

	stockMap, err := s.GetStockMap(ctx, "b-ghost", []string{"p-a", "p-ghost"})
	if err != nil {
		t.Fatalf("get stock map: %v", err)
	}
	if stockMap["p-a"] != 0 || stockMap["p-ghost"] != 0 {
		t.Fatalf("missing entries must read as zero, got %+v", stockMap)
	}
}

func TestSetStockClampsAndRejectsUnknownProduct(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedBranchAndProduct(t, s, "b-1", "p-a", 3)

	if err := s.SetStock(ctx, "b-1", "p-a", -9); err != nil {
		t.Fatalf("set stock: %v", err)
	}
	stockMap, _ := s.GetStockMap(ctx, "b-1", []string{"p-a"})
	if stockMap["p-a"] != 0 {
		t.Fatalf("expected clamp to zero, got %d", stockMap["p-a"])
	}

	if err := s.SetStock(ctx, "b-1", "p-ghost", 5); !errors.Is(err, store.ErrUnknownProduct) {
		t.Fatalf("expected unknown product, got %v", err)
	}
}

func TestCreateProductFansEntriesToEveryBranch(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	if _, err := s.CreateBranch(ctx, domain.Branch{ID: "b-1", Name: "One"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if _, err := s.CreateBranch(ctx, domain.Branch{ID: "b-2", Name: "Two"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}

	product := domain.Product{ID: "p-new", Code: "P-NEW", Name: "New"}
	if _, err := s.CreateProduct(ctx, product, "b-1", 25); err != nil {
		t.Fatalf("create product: %v", err)
	}

	one, _ := s.GetStockMap(ctx, "b-1", []string{"p-new"})
	two, _ := s.GetStockMap(ctx, "b-2", []string{"p-new"})
	if one["p-new"] != 25 || two["p-new"] != 0 {
		t.Fatalf("expected 25/0 fan-out, got %d/%d", one["p-new"], two["p-new"])
	}
}

func TestUpdateTransferStatusAppliesMoveWhenAsked(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedBranchAndProduct(t, s, "b-1", "p-a", 10)
	if _, err := s.CreateBranch(ctx, domain.Branch{ID: "b-2", Name: "Two"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}

	transfer, err := s.CreateTransfer(ctx, domain.Transfer{
		ID:           "tr-1",
		ProductID:    "p-a",
		FromBranchID: "b-1",
		ToBranchID:   "b-2",
		Qty:          4,
	})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}
	if transfer.Status != domain.TransferStatusPending || transfer.Applied {
		t.Fatalf("unexpected fresh transfer %+v", transfer)
	}

	// Status-only update leaves the ledger alone.
	if _, err := s.UpdateTransferStatus(ctx, "tr-1", domain.TransferStatusApproved, false, time.Now()); err != nil {
		t.Fatalf("approve: %v", err)
	}
	stockMap, _ := s.GetStockMap(ctx, "b-1", []string{"p-a"})
	if stockMap["p-a"] != 10 {
		t.Fatalf("approval moved stock: %d", stockMap["p-a"])
	}

	updated, err := s.UpdateTransferStatus(ctx, "tr-1", domain.TransferStatusCompleted, true, time.Now())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !updated.Applied {
		t.Fatalf("expected applied transfer")
	}
	from, _ := s.GetStockMap(ctx, "b-1", []string{"p-a"})
	to, _ := s.GetStockMap(ctx, "b-2", []string{"p-a"})
	if from["p-a"] != 6 || to["p-a"] != 4 {
		t.Fatalf("expected 6/4 after apply, got %d/%d", from["p-a"], to["p-a"])
	}
}

func TestUpdateTransferStatusAppliesExactlyOnce(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedBranchAndProduct(t, s, "b-1", "p-a", 30)
	if _, err := s.CreateBranch(ctx, domain.Branch{ID: "b-2", Name: "Two"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if _, err := s.CreateTransfer(ctx, domain.Transfer{
		ID: "tr-1", ProductID: "p-a", FromBranchID: "b-1", ToBranchID: "b-2", Qty: 10,
	}); err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	// Both callers decided apply=true from the same pre-completion read.
	if _, err := s.UpdateTransferStatus(ctx, "tr-1", domain.TransferStatusCompleted, true, time.Now()); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	updated, err := s.UpdateTransferStatus(ctx, "tr-1", domain.TransferStatusCompleted, true, time.Now())
	if err != nil {
		t.Fatalf("second completion: %v", err)
	}
	if !updated.Applied || updated.Status != domain.TransferStatusCompleted {
		t.Fatalf("unexpected transfer after re-completion: %+v", updated)
	}

	from, _ := s.GetStockMap(ctx, "b-1", []string{"p-a"})
	to, _ := s.GetStockMap(ctx, "b-2", []string{"p-a"})
	if from["p-a"] != 20 || to["p-a"] != 10 {
		t.Fatalf("expected the move applied once (20/10), got %d/%d", from["p-a"], to["p-a"])
	}
}

func TestUpdateTransferStatusConcurrentCompletionsMoveStockOnce(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedBranchAndProduct(t, s, "b-1", "p-a", 30)
	if _, err := s.CreateBranch(ctx, domain.Branch{ID: "b-2", Name: "Two"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if _, err := s.CreateTransfer(ctx, domain.Transfer{
		ID: "tr-1", ProductID: "p-a", FromBranchID: "b-1", ToBranchID: "b-2", Qty: 10,
	}); err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	const completers = 8
	var wg sync.WaitGroup
	for i := 0; i < completers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.UpdateTransferStatus(ctx, "tr-1", domain.TransferStatusCompleted, true, time.Now()); err != nil {
				t.Errorf("complete: %v", err)
			}
		}()
	}
	wg.Wait()

	from, _ := s.GetStockMap(ctx, "b-1", []string{"p-a"})
	to, _ := s.GetStockMap(ctx, "b-2", []string{"p-a"})
	if from["p-a"] != 20 || to["p-a"] != 10 {
		t.Fatalf("expected the move applied once (20/10), got %d/%d", from["p-a"], to["p-a"])
	}
}

func TestUpdateTransferStatusRejectsBrokenReferences(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()
	seedBranchAndProduct(t, s, "b-1", "p-a", 10)
	if _, err := s.CreateBranch(ctx, domain.Branch{ID: "b-2", Name: "Two"}); err != nil {
		t.Fatalf("create branch: %v", err)
	}
	if _, err := s.CreateTransfer(ctx, domain.Transfer{
		ID: "tr-1", ProductID: "p-a", FromBranchID: "b-1", ToBranchID: "b-2", Qty: 4,
	}); err != nil {
		t.Fatalf("create transfer: %v", err)
	}

	// Product vanishes between creation and completion.
	if err := s.DeleteProduct(ctx, "p-a"); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	_, err := s.UpdateTransferStatus(ctx, "tr-1", domain.TransferStatusCompleted, true, time.Now())
	if !errors.Is(err, store.ErrInvalidTransferData) {
		t.Fatalf("expected invalid transfer data, got %v", err)
	}

	// Status-only transitions check the same references.
	_, err = s.UpdateTransferStatus(ctx, "tr-1", domain.TransferStatusApproved, false, time.Now())
	if !errors.Is(err, store.ErrInvalidTransferData) {
		t.Fatalf("expected invalid transfer data on approval, got %v", err)
	}
}

func TestFindStaffByLoginMatchesIDOrEmail(t *testing.T) {
	s := NewEmpty()
	ctx := context.Background()

	err := s.CreateStaff(ctx, domain.StaffAccount{
		StaffID:      "mgr001",
		Name:         "Manager",
		Email:        "MGR@Civlily.Local",
		PasswordHash: "$2a$10$fakehash",
		Role:         domain.RoleManager,
	})
	if err != nil {
		t.Fatalf("create staff: %v", err)
	}

	byID, err := s.FindStaffByLogin(ctx, "mgr001")
	if err != nil {
		t.Fatalf("find by staff id: %v", err)
	}
	if byID.StaffID != "MGR001" {
		t.Fatalf("expected normalized staff id, got %s", byID.StaffID)
	}

	if _, err := s.FindStaffByLogin(ctx, "mgr@civlily.local"); err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if _, err := s.FindStaffByLogin(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	// Duplicate staff ids are rejected.
	err = s.CreateStaff(ctx, domain.StaffAccount{StaffID: "MGR001", PasswordHash: "$2a$10$other"})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid input for duplicate, got %v", err)
	}
}

func TestBranchDeactivationKeepsLedgerEntries(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	branch, err := s.GetBranchByID(ctx, "b-east")
	if err != nil {
		t.Fatalf("get branch: %v", err)
	}
	branch.Status = domain.BranchStatusInactive
	if _, err := s.UpdateBranch(ctx, *branch); err != nil {
		t.Fatalf("update branch: %v", err)
	}

	stockMap, err := s.GetStockMap(ctx, "b-east", []string{"p-001"})
	if err != nil {
		t.Fatalf("get stock map: %v", err)
	}
	if stockMap["p-001"] != 20 {
		t.Fatalf("deactivation must keep quantities, got %d", stockMap["p-001"])
	}
}

package store

import (
	"context"
	"errors"
	"time"

	"civlily/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrEmptyCart           = errors.New("empty cart")
	ErrInvalidCustomer     = errors.New("invalid customer")
	ErrUnknownProduct      = errors.New("unknown product")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrMissingBranch       = errors.New("missing branch")
	ErrSameBranch          = errors.New("source and destination branch are the same")
	ErrInvalidTransferData = errors.New("invalid transfer data")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)

type Repository interface {
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	GetBranchByID(ctx context.Context, id string) (*domain.Branch, error)
	CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)
	UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	// CreateProduct stores the product and seeds stock entries: initialStock
	// in branchID, zero in every other branch.
	CreateProduct(ctx context.Context, product domain.Product, branchID string, initialStock int) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	// GetStockMap reports ledger quantities for the given products at a
	// branch. Products with no entry map to zero.
	GetStockMap(ctx context.Context, branchID string, productIDs []string) (map[string]int, error)
	GetBranchStocks(ctx context.Context, branchID string) ([]domain.StockEntry, error)
	ListAllStocks(ctx context.Context) ([]domain.StockEntry, error)
	SetStock(ctx context.Context, branchID string, productID string, qty int) error

	// CreateSale persists the sale and decrements ledger entries for each
	// line in a single atomic unit, re-validating stock under the write
	// lock. On any shortfall nothing is written.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	ListSales(ctx context.Context, branchID string, limit int) ([]domain.Sale, error)
	GetSaleByID(ctx context.Context, id string) (*domain.Sale, error)

	CreateTransfer(ctx context.Context, transfer domain.Transfer) (*domain.Transfer, error)
	GetTransferByID(ctx context.Context, id string) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, branchID string, limit int) ([]domain.Transfer, error)
	// UpdateTransferStatus sets the new status and, when apply is true,
	// atomically moves the quantity from the source branch to the
	// destination and marks the transfer applied.
	UpdateTransferStatus(ctx context.Context, id string, status string, apply bool, at time.Time) (*domain.Transfer, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	ListExpenses(ctx context.Context, branchID string, limit int) ([]domain.Expense, error)
	DeleteExpense(ctx context.Context, id string) error

	GetDailyReport(ctx context.Context, branchID string, from time.Time, to time.Time) (domain.DailyReport, error)

	CreateStaff(ctx context.Context, account domain.StaffAccount) error
	ListStaff(ctx context.Context) ([]domain.StaffAccount, error)
	FindStaffByLogin(ctx context.Context, login string) (*domain.StaffAccount, error)
	UpdateStaffPassword(ctx context.Context, staffID string, passwordHash string) error
}

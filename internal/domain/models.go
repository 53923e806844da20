package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Branch struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
	Phone    string `json:"phone,omitempty"`
	Status   string `json:"status"`
}

type BranchCreateRequest struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Phone    string `json:"phone"`
}

type BranchUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Location *string `json:"location,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Status   *string `json:"status,omitempty"`
}

type Product struct {
	ID           string          `json:"id"`
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Unit         string          `json:"unit"`
	// Stock is a legacy flat quantity kept for payload compatibility.
	// Branch quantities live in the stock ledger.
	Stock     int       `json:"stock"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductCreateRequest struct {
	Code         string          `json:"code"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	Unit         string          `json:"unit"`
	InitialStock int             `json:"initial_stock"`
	BranchID     string          `json:"branch_id"`
}

type ProductUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	Category     *string          `json:"category,omitempty"`
	CostPrice    *decimal.Decimal `json:"cost_price,omitempty"`
	SellingPrice *decimal.Decimal `json:"selling_price,omitempty"`
	Unit         *string          `json:"unit,omitempty"`
	Active       *bool            `json:"active,omitempty"`
	// Stock, when set, updates the ledger entry for the branch in context.
	Stock    *int   `json:"stock,omitempty"`
	BranchID string `json:"branch_id,omitempty"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Customer struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone,omitempty"`
	Email     string          `json:"email,omitempty"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

type CustomerCreateRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type CustomerUpdateRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`
}

// StockEntry is one ledger bucket: the quantity of a product held at a branch.
type StockEntry struct {
	BranchID  string `json:"branch_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SetStockRequest struct {
	BranchID  string `json:"branch_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type SaleLine struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Qty         int             `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type Sale struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	BranchID      string          `json:"branch_id"`
	CustomerID    string          `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CashierID     string          `json:"cashier_id,omitempty"`
	Items         []SaleLine      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method"`
	Paid          decimal.Decimal `json:"paid"`
	Change        decimal.Decimal `json:"change"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SaleItemRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type SaleCreateRequest struct {
	BranchID      string            `json:"branch_id"`
	CustomerID    string            `json:"customer_id,omitempty"`
	Items         []SaleItemRequest `json:"items"`
	PaymentMethod string            `json:"payment_method"`
	Paid          decimal.Decimal   `json:"paid"`
}

type Transfer struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	ProductName  string    `json:"product_name"`
	FromBranchID string    `json:"from_branch_id"`
	ToBranchID   string    `json:"to_branch_id"`
	Qty          int       `json:"qty"`
	Status       string    `json:"status"`
	Applied      bool      `json:"applied"`
	Note         string    `json:"note,omitempty"`
	CreatedBy    string    `json:"created_by,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type TransferCreateRequest struct {
	ProductID    string `json:"product_id"`
	FromBranchID string `json:"from_branch_id"`
	ToBranchID   string `json:"to_branch_id"`
	Qty          int    `json:"qty"`
	Note         string `json:"note"`
}

type TransferStatusRequest struct {
	Status string `json:"status"`
}

type Expense struct {
	ID        string          `json:"id"`
	BranchID  string          `json:"branch_id"`
	Category  string          `json:"category"`
	Note      string          `json:"note"`
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date"`
	CreatedAt time.Time       `json:"created_at"`
}

type ExpenseCreateRequest struct {
	BranchID string          `json:"branch_id"`
	Category string          `json:"category"`
	Note     string          `json:"note"`
	Amount   decimal.Decimal `json:"amount"`
	Date     string          `json:"date"`
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	BranchID    string `json:"branch_id"`
	Name        string `json:"name"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	StaffID  string
	Role     string
	BranchID string
}

type Staff struct {
	ID        string    `json:"id"`
	StaffID   string    `json:"staff_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	BranchID  string    `json:"branch_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type StaffCreateRequest struct {
	StaffID  string `json:"staff_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	BranchID string `json:"branch_id"`
}

// StaffAccount is an internal persistence model for auth credentials.
type StaffAccount struct {
	ID           string
	StaffID      string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	BranchID     string
	Status       string
	CreatedAt    time.Time
}

type DailyReportPayment struct {
	PaymentMethod string          `json:"payment_method"`
	Sales         int64           `json:"sales"`
	Total         decimal.Decimal `json:"total"`
}

type DailyReport struct {
	BranchID   string               `json:"branch_id"`
	Date       string               `json:"date"`
	Sales      int64                `json:"sales"`
	GrossSales decimal.Decimal      `json:"gross_sales"`
	Expenses   decimal.Decimal      `json:"expenses"`
	ByPayment  []DailyReportPayment `json:"by_payment"`
}

// BootstrapSnapshot is the initial dataset a client loads after login.
type BootstrapSnapshot struct {
	Branches    []Branch     `json:"branches"`
	Products    []Product    `json:"products"`
	Stocks      []StockEntry `json:"stocks"`
	Customers   []Customer   `json:"customers"`
	Categories  []Category   `json:"categories"`
	Sales       []Sale       `json:"sales"`
	Transfers   []Transfer   `json:"transfers"`
	Expenses    []Expense    `json:"expenses"`
	GeneratedAt time.Time    `json:"generated_at"`
}

const (
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleCashier = "CASHIER"
)

const (
	BranchStatusActive   = "Active"
	BranchStatusInactive = "Inactive"
)

const (
	SaleStatusPaid = "Paid"
)

const (
	TransferStatusPending   = "PENDING"
	TransferStatusApproved  = "APPROVED"
	TransferStatusCompleted = "COMPLETED"
)

// TransferStatusRank orders the workflow; transitions may only move forward.
func TransferStatusRank(status string) int {
	switch status {
	case TransferStatusPending:
		return 0
	case TransferStatusApproved:
		return 1
	case TransferStatusCompleted:
		return 2
	default:
		return -1
	}
}

package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"civlily/backend/internal/domain"
	"civlily/backend/internal/store"
	"civlily/backend/internal/xid"
)

// Store keeps the whole dataset behind one mutex. It serves offline and
// demo deployments where a single process owns all writes.
type Store struct {
	mu            sync.RWMutex
	branches      map[string]domain.Branch
	products      map[string]domain.Product
	categories    map[string]domain.Category
	customers     map[string]domain.Customer
	stocks        map[string]map[string]int
	salesByID     map[string]*domain.Sale
	transfersByID map[string]domain.Transfer
	expensesByID  map[string]domain.Expense
	staffByID     map[string]domain.StaffAccount
}

// seedStaff builds the initial staff accounts for dev/demo mode. The admin
// password is read from SEED_ADMIN_PASSWORD; a hardcoded dev default is used
// with a warning when unset. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedStaff() map[string]domain.StaffAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD to override.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed password: %v", err)
	}

	now := time.Now().UTC()
	return map[string]domain.StaffAccount{
		"u-admin": {
			ID:           "u-admin",
			StaffID:      "ADMIN001",
			Name:         "System Admin",
			Email:        "admin@civlily.local",
			PasswordHash: string(hash),
			Role:         domain.RoleAdmin,
			BranchID:     "b-main",
			Status:       "Active",
			CreatedAt:    now,
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	branches := map[string]domain.Branch{
		"b-main": {ID: "b-main", Name: "Main Branch", Location: "City Center", Status: domain.BranchStatusActive},
		"b-east": {ID: "b-east", Name: "East Branch", Location: "East Side", Status: domain.BranchStatusActive},
	}

	products := []domain.Product{
		{ID: "p-001", Code: "PRD001", Name: "Rice 5kg", Category: "Grocery", CostPrice: decimal.NewFromInt(9500), SellingPrice: decimal.NewFromInt(12000), Unit: "bag", Active: true, CreatedAt: now},
		{ID: "p-002", Code: "PRD002", Name: "Cooking Oil 1L", Category: "Grocery", CostPrice: decimal.NewFromInt(5200), SellingPrice: decimal.NewFromInt(6500), Unit: "bottle", Active: true, CreatedAt: now},
		{ID: "p-003", Code: "PRD003", Name: "Sugar 1kg", Category: "Grocery", CostPrice: decimal.NewFromInt(2400), SellingPrice: decimal.NewFromInt(3200), Unit: "pack", Active: true, CreatedAt: now},
		{ID: "p-004", Code: "PRD004", Name: "Washing Soap", Category: "Household", CostPrice: decimal.NewFromInt(900), SellingPrice: decimal.NewFromInt(1500), Unit: "bar", Active: true, CreatedAt: now},
		{ID: "p-005", Code: "PRD005", Name: "Drinking Water 1.5L", Category: "Beverage", CostPrice: decimal.NewFromInt(600), SellingPrice: decimal.NewFromInt(1000), Unit: "bottle", Active: true, CreatedAt: now},
	}

	productMap := make(map[string]domain.Product, len(products))
	stocks := make(map[string]map[string]int, len(branches))
	for id := range branches {
		stocks[id] = make(map[string]int)
	}
	for _, p := range products {
		productMap[p.ID] = p
		stocks["b-main"][p.ID] = 50
		stocks["b-east"][p.ID] = 20
	}

	categories := map[string]domain.Category{
		"cat-grocery":   {ID: "cat-grocery", Name: "Grocery"},
		"cat-household": {ID: "cat-household", Name: "Household"},
		"cat-beverage":  {ID: "cat-beverage", Name: "Beverage"},
	}

	customers := map[string]domain.Customer{
		"c-001": {ID: "c-001", Name: "Walk-in Customer", Balance: decimal.Zero, CreatedAt: now},
	}

	return &Store{
		branches:      branches,
		products:      productMap,
		categories:    categories,
		customers:     customers,
		stocks:        stocks,
		salesByID:     make(map[string]*domain.Sale),
		transfersByID: make(map[string]domain.Transfer),
		expensesByID:  make(map[string]domain.Expense),
		staffByID:     seedStaff(),
	}
}

// NewEmpty returns a store with no seed data. Tests use it when they need
// full control of the dataset.
func NewEmpty() *Store {
	return &Store{
		branches:      make(map[string]domain.Branch),
		products:      make(map[string]domain.Product),
		categories:    make(map[string]domain.Category),
		customers:     make(map[string]domain.Customer),
		stocks:        make(map[string]map[string]int),
		salesByID:     make(map[string]*domain.Sale),
		transfersByID: make(map[string]domain.Transfer),
		expensesByID:  make(map[string]domain.Expense),
		staffByID:     make(map[string]domain.StaffAccount),
	}
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		branches = append(branches, b)
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		return cmpString(a.ID, b.ID)
	})
	return branches, nil
}

func (s *Store) GetBranchByID(_ context.Context, id string) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, exists := s.branches[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyBranch := branch
	return &copyBranch, nil
}

func (s *Store) CreateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if branch.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if branch.ID == "" {
		branch.ID = xid.New("b")
	}
	if branch.Status == "" {
		branch.Status = domain.BranchStatusActive
	}
	if _, exists := s.branches[branch.ID]; exists {
		return nil, store.ErrInvalidInput
	}

	s.branches[branch.ID] = branch
	if _, ok := s.stocks[branch.ID]; !ok {
		s.stocks[branch.ID] = make(map[string]int)
	}
	created := branch
	return &created, nil
}

func (s *Store) UpdateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.branches[branch.ID]; !exists {
		return nil, store.ErrNotFound
	}
	// Deactivation keeps the branch's ledger entries intact.
	s.branches[branch.ID] = branch
	updated := branch
	return &updated, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Code, b.Code)
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, branchID string, initialStock int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("p")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.branches[branchID]; !exists {
		return nil, store.ErrMissingBranch
	}
	if initialStock < 0 {
		initialStock = 0
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	product.Active = true
	s.products[product.ID] = product

	// Fan the initial quantity to the creating branch and a zero entry to
	// every other branch.
	for id := range s.branches {
		if _, ok := s.stocks[id]; !ok {
			s.stocks[id] = make(map[string]int)
		}
		if id == branchID {
			s.stocks[id][product.ID] = initialStock
		} else {
			s.stocks[id][product.ID] = 0
		}
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	for branchID := range s.stocks {
		delete(s.stocks[branchID], id)
	}
	return nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	s.categories[category.ID] = category
	created := category
	return &created, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.ID, b.ID)
	})
	return customers, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyCustomer := customer
	return &copyCustomer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("c")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	s.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[customer.ID]; !exists {
		return nil, store.ErrNotFound
	}
	s.customers[customer.ID] = customer
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[id]; !exists {
		return store.ErrNotFound
	}
	// Sales keep the customer name snapshot, so deleting the record is safe.
	delete(s.customers, id)
	return nil
}

func (s *Store) GetStockMap(_ context.Context, branchID string, productIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stockMap := make(map[string]int, len(productIDs))
	branchStock := s.stocks[branchID]
	for _, id := range productIDs {
		if branchStock == nil {
			stockMap[id] = 0
			continue
		}
		stockMap[id] = branchStock[id]
	}
	return stockMap, nil
}

func (s *Store) GetBranchStocks(_ context.Context, branchID string) ([]domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branchStock := s.stocks[branchID]
	entries := make([]domain.StockEntry, 0, len(branchStock))
	for productID, qty := range branchStock {
		entries = append(entries, domain.StockEntry{BranchID: branchID, ProductID: productID, Quantity: qty})
	}
	slices.SortFunc(entries, func(a, b domain.StockEntry) int {
		return cmpString(a.ProductID, b.ProductID)
	})
	return entries, nil
}

func (s *Store) ListAllStocks(_ context.Context) ([]domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.StockEntry, 0, 64)
	for branchID, branchStock := range s.stocks {
		for productID, qty := range branchStock {
			entries = append(entries, domain.StockEntry{BranchID: branchID, ProductID: productID, Quantity: qty})
		}
	}
	slices.SortFunc(entries, func(a, b domain.StockEntry) int {
		if a.BranchID == b.BranchID {
			return cmpString(a.ProductID, b.ProductID)
		}
		return cmpString(a.BranchID, b.BranchID)
	})
	return entries, nil
}

func (s *Store) SetStock(_ context.Context, branchID string, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[productID]; !exists {
		return store.ErrUnknownProduct
	}
	if qty < 0 {
		qty = 0
	}
	branchStock, ok := s.stocks[branchID]
	if !ok {
		branchStock = make(map[string]int)
		s.stocks[branchID] = branchStock
	}
	branchStock[productID] = qty
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrEmptyCart
	}
	branchStock, ok := s.stocks[sale.BranchID]
	if !ok {
		return nil, store.ErrMissingBranch
	}

	// Validate every line before touching the ledger so a shortfall on the
	// last item leaves earlier items untouched.
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidQuantity
		}
		if _, exists := s.products[item.ProductID]; !exists {
			return nil, store.ErrUnknownProduct
		}
		if branchStock[item.ProductID] < item.Qty {
			return nil, store.ErrInsufficientStock
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("s")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.Status == "" {
		sale.Status = domain.SaleStatusPaid
	}

	for _, item := range sale.Items {
		branchStock[item.ProductID] -= item.Qty
	}

	saleCopy := cloneSale(&sale)
	s.salesByID[sale.ID] = saleCopy
	return cloneSale(saleCopy), nil
}

func (s *Store) ListSales(_ context.Context, branchID string, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, 64)
	for _, sale := range s.salesByID {
		if branchID != "" && sale.BranchID != branchID {
			continue
		}
		result = append(result, *cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetSaleByID(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) CreateTransfer(_ context.Context, transfer domain.Transfer) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if transfer.ID == "" {
		transfer.ID = xid.New("t")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}
	transfer.UpdatedAt = transfer.CreatedAt
	transfer.Status = domain.TransferStatusPending
	transfer.Applied = false

	if s.stocks[transfer.FromBranchID][transfer.ProductID] < transfer.Qty {
		return nil, store.ErrInsufficientStock
	}

	s.transfersByID[transfer.ID] = transfer
	created := transfer
	return &created, nil
}

func (s *Store) GetTransferByID(_ context.Context, id string) (*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfer, exists := s.transfersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyTransfer := transfer
	return &copyTransfer, nil
}

func (s *Store) ListTransfers(_ context.Context, branchID string, limit int) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transfer, 0, len(s.transfersByID))
	for _, transfer := range s.transfersByID {
		if branchID != "" && transfer.FromBranchID != branchID && transfer.ToBranchID != branchID {
			continue
		}
		result = append(result, transfer)
	}
	slices.SortFunc(result, func(a, b domain.Transfer) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) UpdateTransferStatus(_ context.Context, id string, status string, apply bool, at time.Time) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, exists := s.transfersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	// Every status change requires the transfer's references to still be
	// coherent, not just the completing one.
	if _, ok := s.products[transfer.ProductID]; !ok {
		return nil, store.ErrInvalidTransferData
	}
	if _, ok := s.branches[transfer.FromBranchID]; !ok {
		return nil, store.ErrInvalidTransferData
	}
	if _, ok := s.branches[transfer.ToBranchID]; !ok {
		return nil, store.ErrInvalidTransferData
	}
	if transfer.Qty < 1 {
		return nil, store.ErrInvalidTransferData
	}

	// The caller's apply decision may be stale; re-check under the lock so
	// a transfer is never applied twice.
	if apply && transfer.Applied {
		apply = false
	}

	if apply {
		fromStock := s.stocks[transfer.FromBranchID]
		if fromStock[transfer.ProductID] < transfer.Qty {
			return nil, store.ErrInsufficientStock
		}
		toStock, ok := s.stocks[transfer.ToBranchID]
		if !ok {
			toStock = make(map[string]int)
			s.stocks[transfer.ToBranchID] = toStock
		}
		fromStock[transfer.ProductID] -= transfer.Qty
		toStock[transfer.ProductID] += transfer.Qty
		transfer.Applied = true
	}

	transfer.Status = status
	transfer.UpdatedAt = at
	s.transfersByID[id] = transfer
	updated := transfer
	return &updated, nil
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expense.ID == "" {
		expense.ID = xid.New("e")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	s.expensesByID[expense.ID] = expense
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(_ context.Context, branchID string, limit int) ([]domain.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Expense, 0, len(s.expensesByID))
	for _, expense := range s.expensesByID {
		if branchID != "" && expense.BranchID != branchID {
			continue
		}
		result = append(result, expense)
	}
	slices.SortFunc(result, func(a, b domain.Expense) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.expensesByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.expensesByID, id)
	return nil
}

func (s *Store) GetDailyReport(_ context.Context, branchID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.DailyReport{
		BranchID:   branchID,
		Date:       from.Format("2006-01-02"),
		GrossSales: decimal.Zero,
		Expenses:   decimal.Zero,
		ByPayment:  make([]domain.DailyReportPayment, 0, 4),
	}
	byPayment := map[string]*domain.DailyReportPayment{}

	for _, sale := range s.salesByID {
		if sale.BranchID != branchID {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		report.Sales++
		report.GrossSales = report.GrossSales.Add(sale.Total)

		payment := byPayment[sale.PaymentMethod]
		if payment == nil {
			payment = &domain.DailyReportPayment{PaymentMethod: sale.PaymentMethod, Total: decimal.Zero}
			byPayment[sale.PaymentMethod] = payment
		}
		payment.Sales++
		payment.Total = payment.Total.Add(sale.Total)
	}

	for _, expense := range s.expensesByID {
		if expense.BranchID != branchID {
			continue
		}
		if expense.CreatedAt.Before(from) || !expense.CreatedAt.Before(to) {
			continue
		}
		report.Expenses = report.Expenses.Add(expense.Amount)
	}

	for _, entry := range byPayment {
		report.ByPayment = append(report.ByPayment, *entry)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.DailyReportPayment) int {
		return cmpString(a.PaymentMethod, b.PaymentMethod)
	})

	return report, nil
}

func (s *Store) CreateStaff(_ context.Context, account domain.StaffAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.StaffID = strings.ToUpper(strings.TrimSpace(account.StaffID))
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	if account.StaffID == "" || account.PasswordHash == "" {
		return store.ErrInvalidInput
	}
	for _, existing := range s.staffByID {
		if existing.StaffID == account.StaffID {
			return store.ErrInvalidInput
		}
		if account.Email != "" && existing.Email == account.Email {
			return store.ErrInvalidInput
		}
	}
	if account.ID == "" {
		account.ID = xid.New("u")
	}
	if account.Role == "" {
		account.Role = domain.RoleCashier
	}
	if account.Status == "" {
		account.Status = "Active"
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	s.staffByID[account.ID] = account
	return nil
}

func (s *Store) ListStaff(_ context.Context) ([]domain.StaffAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.StaffAccount, 0, len(s.staffByID))
	for _, account := range s.staffByID {
		accounts = append(accounts, account)
	}
	slices.SortFunc(accounts, func(a, b domain.StaffAccount) int {
		return cmpString(a.StaffID, b.StaffID)
	})
	return accounts, nil
}

func (s *Store) FindStaffByLogin(_ context.Context, login string) (*domain.StaffAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	upper := strings.ToUpper(strings.TrimSpace(login))
	lower := strings.ToLower(strings.TrimSpace(login))
	for _, account := range s.staffByID {
		if account.StaffID == upper || (account.Email != "" && account.Email == lower) {
			copyAccount := account
			return &copyAccount, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpdateStaffPassword(_ context.Context, staffID string, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staffID = strings.ToUpper(strings.TrimSpace(staffID))
	if staffID == "" || passwordHash == "" {
		return store.ErrInvalidInput
	}
	for id, account := range s.staffByID {
		if account.StaffID == staffID {
			account.PasswordHash = passwordHash
			s.staffByID[id] = account
			return nil
		}
	}
	return store.ErrNotFound
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	dupItems := make([]domain.SaleLine, len(src.Items))
	copy(dupItems, src.Items)
	dup.Items = dupItems
	return &dup
}

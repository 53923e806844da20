package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"civlily/backend/internal/cache"
	"civlily/backend/internal/domain"
	"civlily/backend/internal/restock"
	"civlily/backend/internal/store"
	"civlily/backend/internal/xid"
)

type actorContextKey struct{}

// WithActor attaches the authenticated staff member to the context so
// service methods can scope writes to their branch.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	defaultCustomerID   = "c-001"
	snapshotCacheKey    = "civlily:bootstrap"
	snapshotCacheTTL    = 30 * time.Second
	bootstrapListLimit  = 50
	maxSaleLineQuantity = 100000
)

type Service struct {
	repo            store.Repository
	snapshots       cache.SnapshotCache
	advisor         *restock.Advisor
	defaultBranchID string
}

func New(repo store.Repository, snapshots cache.SnapshotCache, defaultBranchID string) *Service {
	if snapshots == nil {
		snapshots = cache.NoopSnapshotCache{}
	}
	if defaultBranchID == "" {
		defaultBranchID = "b-main"
	}

	return &Service{
		repo:            repo,
		snapshots:       snapshots,
		advisor:         restock.NewAdvisor(10),
		defaultBranchID: defaultBranchID,
	}
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	return s.repo.ListBranches(ctx)
}

func (s *Service) GetBranch(ctx context.Context, id string) (*domain.Branch, error) {
	return s.repo.GetBranchByID(ctx, id)
}

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (*domain.Branch, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("branch name is required: %w", store.ErrInvalidInput)
	}

	branch := domain.Branch{
		ID:       xid.New("b"),
		Name:     name,
		Location: strings.TrimSpace(req.Location),
		Phone:    strings.TrimSpace(req.Phone),
		Status:   domain.BranchStatusActive,
	}

	created, err := s.repo.CreateBranch(ctx, branch)
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx)
	log.Printf("[service] branch created id=%s name=%q", created.ID, created.Name)
	return created, nil
}

func (s *Service) UpdateBranch(ctx context.Context, id string, req domain.BranchUpdateRequest) (*domain.Branch, error) {
	existing, err := s.repo.GetBranchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	branch := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("branch name is required: %w", store.ErrInvalidInput)
		}
		branch.Name = name
	}
	if req.Location != nil {
		branch.Location = strings.TrimSpace(*req.Location)
	}
	if req.Phone != nil {
		branch.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Status != nil {
		status := strings.TrimSpace(*req.Status)
		if status != domain.BranchStatusActive && status != domain.BranchStatusInactive {
			return nil, fmt.Errorf("unknown branch status %q: %w", status, store.ErrInvalidInput)
		}
		// Deactivation keeps the branch's ledger rows; quantities stay
		// readable and can still be transferred out.
		branch.Status = status
	}

	updated, err := s.repo.UpdateBranch(ctx, branch)
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx)
	return updated, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return s.repo.GetProductByID(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (*domain.Product, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	name := strings.TrimSpace(req.Name)
	if code == "" || name == "" {
		return nil, fmt.Errorf("product code and name are required: %w", store.ErrInvalidInput)
	}
	if req.SellingPrice.IsNegative() || req.CostPrice.IsNegative() {
		return nil, fmt.Errorf("product prices must not be negative: %w", store.ErrInvalidInput)
	}

	branchID := s.resolveBranchID(ctx, req.BranchID)
	if err := s.requireBranch(ctx, branchID); err != nil {
		return nil, err
	}

	initialStock := req.InitialStock
	if initialStock < 0 {
		log.Printf("[service] WARN: negative initial stock %d for product %s clamped to 0", initialStock, code)
		initialStock = 0
	}

	product := domain.Product{
		ID:           xid.New("p"),
		Code:         code,
		Name:         name,
		Category:     strings.TrimSpace(req.Category),
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		Unit:         defaultString(req.Unit, "pcs"),
		Stock:        initialStock,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}

	created, err := s.repo.CreateProduct(ctx, product, branchID, initialStock)
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx)
	log.Printf("[service] product created id=%s code=%s initial_stock=%d branch=%s", created.ID, created.Code, initialStock, branchID)
	return created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (*domain.Product, error) {
	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	product := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("product name is required: %w", store.ErrInvalidInput)
		}
		product.Name = name
	}
	if req.Category != nil {
		product.Category = strings.TrimSpace(*req.Category)
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return nil, fmt.Errorf("cost price must not be negative: %w", store.ErrInvalidInput)
		}
		product.CostPrice = *req.CostPrice
	}
	if req.SellingPrice != nil {
		if req.SellingPrice.IsNegative() {
			return nil, fmt.Errorf("selling price must not be negative: %w", store.ErrInvalidInput)
		}
		product.SellingPrice = *req.SellingPrice
	}
	if req.Unit != nil {
		product.Unit = defaultString(*req.Unit, product.Unit)
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return nil, err
	}

	if req.Stock != nil {
		branchID := s.resolveBranchID(ctx, req.BranchID)
		if err := s.SetStock(ctx, domain.SetStockRequest{BranchID: branchID, ProductID: id, Quantity: *req.Stock}); err != nil {
			return nil, err
		}
	}

	s.invalidateSnapshot(ctx)
	return updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateSnapshot(ctx)
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("category name is required: %w", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{ID: xid.New("cat"), Name: name})
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx)
	return created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (*domain.Customer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("customer name is required: %w", store.ErrInvalidInput)
	}

	customer := domain.Customer{
		ID:        xid.New("c"),
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Balance:   decimal.Zero,
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx)
	return created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (*domain.Customer, error) {
	existing, err := s.repo.GetCustomerByID(ctx, id)
	if err != nil {
		return nil, err
	}

	customer := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("customer name is required: %w", store.ErrInvalidInput)
		}
		customer.Name = name
	}
	if req.Phone != nil {
		customer.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		customer.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}

	updated, err := s.repo.UpdateCustomer(ctx, customer)
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx)
	return updated, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.invalidateSnapshot(ctx)
	return nil
}

func (s *Service) BranchStocks(ctx context.Context, branchID string) ([]domain.StockEntry, error) {
	branchID = s.resolveBranchID(ctx, branchID)
	if err := s.requireBranch(ctx, branchID); err != nil {
		return nil, err
	}
	return s.repo.GetBranchStocks(ctx, branchID)
}

func (s *Service) AllStocks(ctx context.Context) ([]domain.StockEntry, error) {
	return s.repo.ListAllStocks(ctx)
}

// SetStock overwrites one ledger entry. Negative quantities are clamped to
// zero rather than rejected so bulk corrections never strand an entry
// below the floor.
func (s *Service) SetStock(ctx context.Context, req domain.SetStockRequest) error {
	branchID := s.resolveBranchID(ctx, req.BranchID)
	if err := s.requireBranch(ctx, branchID); err != nil {
		return err
	}
	if _, err := s.repo.GetProductByID(ctx, req.ProductID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("product %s: %w", req.ProductID, store.ErrUnknownProduct)
		}
		return err
	}

	qty := req.Quantity
	if qty < 0 {
		log.Printf("[service] WARN: negative stock %d for product=%s branch=%s clamped to 0", qty, req.ProductID, branchID)
		qty = 0
	}

	if err := s.repo.SetStock(ctx, branchID, req.ProductID, qty); err != nil {
		return err
	}

	s.invalidateSnapshot(ctx)
	log.Printf("[service] stock set branch=%s product=%s qty=%d", branchID, req.ProductID, qty)
	return nil
}

// RecordSale validates every line before any quantity moves: one bad line
// fails the whole sale and the ledger stays untouched.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleCreateRequest) (*domain.Sale, error) {
	branchID := s.resolveBranchID(ctx, req.BranchID)
	branch, err := s.repo.GetBranchByID(ctx, branchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("branch %s: %w", branchID, store.ErrMissingBranch)
		}
		return nil, err
	}
	if branch.Status != domain.BranchStatusActive {
		return nil, fmt.Errorf("branch %s is inactive: %w", branchID, store.ErrMissingBranch)
	}

	items, err := normalizeSaleItems(req.Items)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, store.ErrEmptyCart
	}

	customerID, customerName, err := s.resolveCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = "cash"
	}
	if !isSupportedPaymentMethod(method) {
		return nil, fmt.Errorf("unsupported payment method %q: %w", method, store.ErrInvalidInput)
	}
	if req.Paid.IsNegative() {
		return nil, fmt.Errorf("paid amount must not be negative: %w", store.ErrInvalidInput)
	}

	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || !product.Active {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrUnknownProduct)
		}
	}

	stockMap, err := s.repo.GetStockMap(ctx, branchID, productIDs)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if have := stockMap[item.ProductID]; have < item.Qty {
			product := products[item.ProductID]
			return nil, fmt.Errorf("%s: have %d, want %d: %w", product.Name, have, item.Qty, store.ErrInsufficientStock)
		}
	}

	now := time.Now().UTC()
	lines := make([]domain.SaleLine, 0, len(items))
	total := decimal.Zero
	for _, item := range items {
		product := products[item.ProductID]
		lineTotal := product.SellingPrice.Mul(decimal.NewFromInt(int64(item.Qty)))
		lines = append(lines, domain.SaleLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Qty:         item.Qty,
			UnitPrice:   product.SellingPrice,
			LineTotal:   lineTotal,
		})
		total = total.Add(lineTotal)
	}

	change := req.Paid.Sub(total)
	if change.IsNegative() {
		change = decimal.Zero
	}

	cashierID := ""
	if actor, ok := ActorFromContext(ctx); ok {
		cashierID = actor.StaffID
	}

	sale := domain.Sale{
		ID:            xid.New("sale"),
		Code:          saleCode(now),
		BranchID:      branchID,
		CustomerID:    customerID,
		CustomerName:  customerName,
		CashierID:     cashierID,
		Items:         lines,
		Total:         total,
		PaymentMethod: method,
		Paid:          req.Paid,
		Change:        change,
		Status:        domain.SaleStatusPaid,
		CreatedAt:     now,
	}

	created, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx)
	log.Printf("[service] sale recorded code=%s branch=%s lines=%d total=%s", created.Code, branchID, len(lines), created.Total.StringFixed(2))
	return created, nil
}

func (s *Service) ListSales(ctx context.Context, branchID string, limit int) ([]domain.Sale, error) {
	if limit < 1 || limit > 500 {
		limit = bootstrapListLimit
	}
	return s.repo.ListSales(ctx, branchID, limit)
}

func (s *Service) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.repo.GetSaleByID(ctx, id)
}

// CreateTransfer records the intent to move stock between branches. No
// quantity moves until the transfer is completed.
func (s *Service) CreateTransfer(ctx context.Context, req domain.TransferCreateRequest) (*domain.Transfer, error) {
	fromID := strings.TrimSpace(req.FromBranchID)
	toID := strings.TrimSpace(req.ToBranchID)
	if fromID == "" || toID == "" {
		return nil, fmt.Errorf("source and destination branches are required: %w", store.ErrMissingBranch)
	}
	if fromID == toID {
		return nil, store.ErrSameBranch
	}
	if req.Qty < 1 {
		return nil, fmt.Errorf("transfer qty must be at least 1: %w", store.ErrInvalidQuantity)
	}

	for _, branchID := range []string{fromID, toID} {
		if err := s.requireBranch(ctx, branchID); err != nil {
			return nil, err
		}
	}

	product, err := s.repo.GetProductByID(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("product %s: %w", req.ProductID, store.ErrUnknownProduct)
		}
		return nil, err
	}

	stockMap, err := s.repo.GetStockMap(ctx, fromID, []string{product.ID})
	if err != nil {
		return nil, err
	}
	if have := stockMap[product.ID]; have < req.Qty {
		return nil, fmt.Errorf("%s: have %d, want %d: %w", product.Name, have, req.Qty, store.ErrInsufficientStock)
	}

	createdBy := ""
	if actor, ok := ActorFromContext(ctx); ok {
		createdBy = actor.StaffID
	}

	now := time.Now().UTC()
	transfer := domain.Transfer{
		ID:           xid.New("tr"),
		ProductID:    product.ID,
		ProductName:  product.Name,
		FromBranchID: fromID,
		ToBranchID:   toID,
		Qty:          req.Qty,
		Status:       domain.TransferStatusPending,
		Applied:      false,
		Note:         strings.TrimSpace(req.Note),
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.repo.CreateTransfer(ctx, transfer)
	if err != nil {
		return nil, err
	}

	log.Printf("[service] transfer created id=%s product=%s qty=%d from=%s to=%s", created.ID, created.ProductID, created.Qty, fromID, toID)
	return created, nil
}

// AdvanceTransferStatus moves a transfer forward through
// PENDING -> APPROVED -> COMPLETED. Stock moves exactly once, on the
// transition into COMPLETED; repeating COMPLETED leaves the ledger alone.
func (s *Service) AdvanceTransferStatus(ctx context.Context, id string, status string) (*domain.Transfer, error) {
	next := strings.ToUpper(strings.TrimSpace(status))
	nextRank := domain.TransferStatusRank(next)
	if nextRank < 0 {
		return nil, fmt.Errorf("unknown transfer status %q: %w", status, store.ErrInvalidTransition)
	}

	transfer, err := s.repo.GetTransferByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if nextRank < domain.TransferStatusRank(transfer.Status) {
		return nil, fmt.Errorf("cannot move %s back to %s: %w", transfer.Status, next, store.ErrInvalidTransition)
	}

	apply := next == domain.TransferStatusCompleted && !transfer.Applied
	updated, err := s.repo.UpdateTransferStatus(ctx, id, next, apply, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if apply {
		s.invalidateSnapshot(ctx)
		log.Printf("[service] transfer completed id=%s product=%s qty=%d from=%s to=%s", updated.ID, updated.ProductID, updated.Qty, updated.FromBranchID, updated.ToBranchID)
	}
	return updated, nil
}

func (s *Service) ListTransfers(ctx context.Context, branchID string, limit int) ([]domain.Transfer, error) {
	if limit < 1 || limit > 500 {
		limit = bootstrapListLimit
	}
	return s.repo.ListTransfers(ctx, branchID, limit)
}

func (s *Service) GetTransfer(ctx context.Context, id string) (*domain.Transfer, error) {
	return s.repo.GetTransferByID(ctx, id)
}

func (s *Service) CreateExpense(ctx context.Context, req domain.ExpenseCreateRequest) (*domain.Expense, error) {
	branchID := s.resolveBranchID(ctx, req.BranchID)
	if err := s.requireBranch(ctx, branchID); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("expense amount must be positive: %w", store.ErrInvalidInput)
	}

	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	} else if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid expense date %q: %w", date, store.ErrInvalidInput)
	}

	expense := domain.Expense{
		ID:        xid.New("exp"),
		BranchID:  branchID,
		Category:  defaultString(req.Category, "general"),
		Note:      strings.TrimSpace(req.Note),
		Amount:    req.Amount,
		Date:      date,
		CreatedAt: time.Now().UTC(),
	}

	created, err := s.repo.CreateExpense(ctx, expense)
	if err != nil {
		return nil, err
	}

	s.invalidateSnapshot(ctx)
	return created, nil
}

func (s *Service) ListExpenses(ctx context.Context, branchID string, limit int) ([]domain.Expense, error) {
	if limit < 1 || limit > 500 {
		limit = bootstrapListLimit
	}
	return s.repo.ListExpenses(ctx, branchID, limit)
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	if err := s.repo.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.invalidateSnapshot(ctx)
	return nil
}

func (s *Service) DailyReport(ctx context.Context, branchID string, date string) (domain.DailyReport, error) {
	branchID = s.resolveBranchID(ctx, branchID)

	date = strings.TrimSpace(date)
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	from, err := time.Parse("2006-01-02", date)
	if err != nil {
		return domain.DailyReport{}, fmt.Errorf("invalid report date %q: %w", date, store.ErrInvalidInput)
	}
	to := from.Add(24 * time.Hour)

	report, err := s.repo.GetDailyReport(ctx, branchID, from, to)
	if err != nil {
		return domain.DailyReport{}, err
	}
	report.BranchID = branchID
	report.Date = date
	return report, nil
}

// RestockSuggestions reports which products at a branch have dropped below
// their restock threshold, with donor branches for transfers where another
// branch holds a surplus.
func (s *Service) RestockSuggestions(ctx context.Context, branchID string) ([]restock.Suggestion, error) {
	branchID = s.resolveBranchID(ctx, branchID)
	if err := s.requireBranch(ctx, branchID); err != nil {
		return nil, err
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	stocks, err := s.repo.ListAllStocks(ctx)
	if err != nil {
		return nil, err
	}

	productMap := make(map[string]domain.Product, len(products))
	for _, product := range products {
		productMap[product.ID] = product
	}
	return s.advisor.Suggest(branchID, productMap, stocks), nil
}

// Bootstrap assembles the initial dataset a client loads after login. The
// snapshot is cached and invalidated whenever the ledger or master data
// changes.
func (s *Service) Bootstrap(ctx context.Context) (*domain.BootstrapSnapshot, error) {
	if cached, ok, err := s.snapshots.Get(ctx, snapshotCacheKey); err != nil {
		log.Printf("[service] WARN: snapshot cache read failed: %v", err)
	} else if ok {
		return cached, nil
	}

	branches, err := s.repo.ListBranches(ctx)
	if err != nil {
		return nil, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	stocks, err := s.repo.ListAllStocks(ctx)
	if err != nil {
		return nil, err
	}
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	sales, err := s.repo.ListSales(ctx, "", bootstrapListLimit)
	if err != nil {
		return nil, err
	}
	transfers, err := s.repo.ListTransfers(ctx, "", bootstrapListLimit)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, "", bootstrapListLimit)
	if err != nil {
		return nil, err
	}

	snapshot := &domain.BootstrapSnapshot{
		Branches:    branches,
		Products:    products,
		Stocks:      stocks,
		Customers:   customers,
		Categories:  categories,
		Sales:       sales,
		Transfers:   transfers,
		Expenses:    expenses,
		GeneratedAt: time.Now().UTC(),
	}

	if err := s.snapshots.Set(ctx, snapshotCacheKey, snapshot, snapshotCacheTTL); err != nil {
		log.Printf("[service] WARN: snapshot cache write failed: %v", err)
	}
	return snapshot, nil
}

func (s *Service) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (*domain.Staff, error) {
	staffID := strings.ToUpper(strings.TrimSpace(req.StaffID))
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if staffID == "" || name == "" {
		return nil, fmt.Errorf("staff id and name are required: %w", store.ErrInvalidInput)
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters: %w", store.ErrInvalidInput)
	}

	role := strings.ToUpper(strings.TrimSpace(req.Role))
	switch role {
	case domain.RoleAdmin, domain.RoleManager, domain.RoleCashier:
	default:
		return nil, fmt.Errorf("unknown role %q: %w", req.Role, store.ErrInvalidInput)
	}

	branchID := strings.TrimSpace(req.BranchID)
	if role != domain.RoleAdmin {
		if branchID == "" {
			return nil, fmt.Errorf("branch is required for %s accounts: %w", role, store.ErrMissingBranch)
		}
		if err := s.requireBranch(ctx, branchID); err != nil {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := domain.StaffAccount{
		ID:           xid.New("u"),
		StaffID:      staffID,
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		BranchID:     branchID,
		Status:       "Active",
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.CreateStaff(ctx, account); err != nil {
		return nil, err
	}

	log.Printf("[service] staff created staff_id=%s role=%s branch=%s", staffID, role, branchID)
	staff := toStaff(account)
	return &staff, nil
}

func (s *Service) ListStaff(ctx context.Context) ([]domain.Staff, error) {
	accounts, err := s.repo.ListStaff(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Staff, 0, len(accounts))
	for _, account := range accounts {
		out = append(out, toStaff(account))
	}
	return out, nil
}

// Authenticate resolves a login by staff id or email and checks the
// password. All failure modes return the same error so callers cannot
// enumerate valid accounts.
func (s *Service) Authenticate(ctx context.Context, login string, password string) (*domain.StaffAccount, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, store.ErrInvalidCredentials
	}

	account, err := s.repo.FindStaffByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrInvalidCredentials
		}
		return nil, err
	}
	if account.Status != "Active" {
		return nil, store.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, store.ErrInvalidCredentials
	}
	return account, nil
}

// resolveBranchID prefers the request's branch, then the actor's home
// branch, then the configured default.
func (s *Service) resolveBranchID(ctx context.Context, branchID string) string {
	branchID = strings.TrimSpace(branchID)
	if branchID != "" {
		return branchID
	}
	if actor, ok := ActorFromContext(ctx); ok && actor.BranchID != "" {
		return actor.BranchID
	}
	return s.defaultBranchID
}

func (s *Service) requireBranch(ctx context.Context, branchID string) error {
	if _, err := s.repo.GetBranchByID(ctx, branchID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("branch %s: %w", branchID, store.ErrMissingBranch)
		}
		return err
	}
	return nil
}

func (s *Service) resolveCustomer(ctx context.Context, customerID string) (string, string, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		// A sale must attach to a real customer record. When even the
		// walk-in default is missing the sale fails rather than
		// committing with a phantom id.
		customer, err := s.repo.GetCustomerByID(ctx, defaultCustomerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "", "", fmt.Errorf("no walk-in customer %s: %w", defaultCustomerID, store.ErrInvalidCustomer)
			}
			return "", "", err
		}
		return customer.ID, customer.Name, nil
	}

	customer, err := s.repo.GetCustomerByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", "", fmt.Errorf("customer %s: %w", customerID, store.ErrInvalidCustomer)
		}
		return "", "", err
	}
	return customer.ID, customer.Name, nil
}

func (s *Service) invalidateSnapshot(ctx context.Context) {
	if err := s.snapshots.Invalidate(ctx, snapshotCacheKey); err != nil {
		log.Printf("[service] WARN: snapshot cache invalidation failed: %v", err)
	}
}

// normalizeSaleItems aggregates duplicate product lines and rejects
// non-positive or absurd quantities before any stock is read.
func normalizeSaleItems(items []domain.SaleItemRequest) ([]domain.SaleItemRequest, error) {
	agg := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("sale line is missing a product: %w", store.ErrUnknownProduct)
		}
		if item.Qty < 1 || item.Qty > maxSaleLineQuantity {
			return nil, fmt.Errorf("product %s qty %d: %w", productID, item.Qty, store.ErrInvalidQuantity)
		}
		if _, seen := agg[productID]; !seen {
			order = append(order, productID)
		}
		agg[productID] += item.Qty
	}

	normalized := make([]domain.SaleItemRequest, 0, len(agg))
	for _, productID := range order {
		normalized = append(normalized, domain.SaleItemRequest{ProductID: productID, Qty: agg[productID]})
	}
	return normalized, nil
}

func saleCode(at time.Time) string {
	return fmt.Sprintf("S-%d", at.UnixMilli()%1_000_000_000_000)
}

func toStaff(account domain.StaffAccount) domain.Staff {
	return domain.Staff{
		ID:        account.ID,
		StaffID:   account.StaffID,
		Name:      account.Name,
		Email:     account.Email,
		Role:      account.Role,
		BranchID:  account.BranchID,
		Status:    account.Status,
		CreatedAt: account.CreatedAt,
	}
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case "cash", "card", "qris", "ewallet", "transfer":
		return true
	default:
		return false
	}
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"civlily/backend/internal/domain"
	"civlily/backend/internal/store"
	"civlily/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, location, COALESCE(phone,''), status
		FROM branches
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	branches := make([]domain.Branch, 0, 8)
	for rows.Next() {
		var b domain.Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Location, &b.Phone, &b.Status); err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return branches, nil
}

func (s *Store) GetBranchByID(ctx context.Context, id string) (*domain.Branch, error) {
	var b domain.Branch
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, location, COALESCE(phone,''), status
		FROM branches
		WHERE id = $1
	`, id).Scan(&b.ID, &b.Name, &b.Location, &b.Phone, &b.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (s *Store) CreateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	if branch.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if branch.ID == "" {
		branch.ID = xid.New("b")
	}
	if branch.Status == "" {
		branch.Status = domain.BranchStatusActive
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO branches (id, name, location, phone, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
	`, branch.ID, branch.Name, branch.Location, nullIfEmpty(branch.Phone), branch.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := branch
	return &created, nil
}

func (s *Store) UpdateBranch(ctx context.Context, branch domain.Branch) (*domain.Branch, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE branches
		SET name = $2, location = $3, phone = $4, status = $5, updated_at = now()
		WHERE id = $1
	`, branch.ID, branch.Name, branch.Location, nullIfEmpty(branch.Phone), branch.Status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := branch
	return &updated, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, category, cost_price, selling_price, unit, active, created_at
		FROM products
		ORDER BY code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.CostPrice, &p.SellingPrice, &p.Unit, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, category, cost_price, selling_price, unit, active, created_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.CostPrice, &p.SellingPrice, &p.Unit, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, category, cost_price, selling_price, unit, active, created_at
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Category, &p.CostPrice, &p.SellingPrice, &p.Unit, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, branchID string, initialStock int) (*domain.Product, error) {
	if product.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("p")
	}
	if initialStock < 0 {
		initialStock = 0
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var branchExists bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM branches WHERE id = $1)`, branchID).Scan(&branchExists)
	if err != nil {
		return nil, err
	}
	if !branchExists {
		return nil, store.ErrMissingBranch
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, code, name, category, cost_price, selling_price, unit, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, product.ID, product.Code, product.Name, product.Category, product.CostPrice, product.SellingPrice, product.Unit, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	// Seed the initial quantity at the creating branch and a zero entry at
	// every other branch in one statement.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO branch_stocks (branch_id, product_id, qty, updated_at)
		SELECT id, $1, CASE WHEN id = $2 THEN $3 ELSE 0 END, now()
		FROM branches
	`, product.ID, branchID, initialStock)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET code = $2, name = $3, category = $4, cost_price = $5, selling_price = $6, unit = $7, active = $8, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Code, product.Name, product.Category, product.CostPrice, product.SellingPrice, product.Unit, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `DELETE FROM branch_stocks WHERE product_id = $1`, id)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name
		FROM categories
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name)
		VALUES ($1,$2)
	`, category.ID, category.Name)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(email,''), balance, created_at
		FROM customers
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Balance, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone,''), COALESCE(email,''), balance, created_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Balance, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if customer.ID == "" {
		customer.ID = xid.New("c")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, balance, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email), customer.Balance, customer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	created := customer
	return &created, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, balance = $5, updated_at = now()
		WHERE id = $1
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email), customer.Balance)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	updated := customer
	return &updated, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetStockMap(ctx context.Context, branchID string, productIDs []string) (map[string]int, error) {
	stockMap := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return stockMap, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, qty
		FROM branch_stocks
		WHERE branch_id = $1 AND product_id = ANY($2)
	`, branchID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		stockMap[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Missing rows read as zero.
	for _, id := range productIDs {
		if _, ok := stockMap[id]; !ok {
			stockMap[id] = 0
		}
	}
	return stockMap, nil
}

func (s *Store) GetBranchStocks(ctx context.Context, branchID string) ([]domain.StockEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT branch_id, product_id, qty
		FROM branch_stocks
		WHERE branch_id = $1
		ORDER BY product_id
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockEntry, 0, 128)
	for rows.Next() {
		var e domain.StockEntry
		if err := rows.Scan(&e.BranchID, &e.ProductID, &e.Quantity); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) ListAllStocks(ctx context.Context) ([]domain.StockEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT branch_id, product_id, qty
		FROM branch_stocks
		ORDER BY branch_id, product_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockEntry, 0, 256)
	for rows.Next() {
		var e domain.StockEntry
		if err := rows.Scan(&e.BranchID, &e.ProductID, &e.Quantity); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) SetStock(ctx context.Context, branchID string, productID string, qty int) error {
	if qty < 0 {
		qty = 0
	}

	var productExists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&productExists)
	if err != nil {
		return err
	}
	if !productExists {
		return store.ErrUnknownProduct
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO branch_stocks (branch_id, product_id, qty, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (branch_id, product_id)
		DO UPDATE SET qty = EXCLUDED.qty, updated_at = now()
	`, branchID, productID, qty)
	return err
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrEmptyCart
	}
	return retrySerializable(func() (*domain.Sale, error) {
		return s.createSaleTx(ctx, sale)
	})
}

func (s *Store) createSaleTx(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	productIDs := uniqueProductIDs(sale.Items)
	if len(productIDs) == 0 {
		return nil, store.ErrUnknownProduct
	}

	stockRows, err := pgTx.QueryContext(ctx, `
		SELECT product_id, qty
		FROM branch_stocks
		WHERE branch_id = $1 AND product_id = ANY($2)
		FOR UPDATE
	`, sale.BranchID, productIDs)
	if err != nil {
		return nil, err
	}
	stockMap := make(map[string]int, len(productIDs))
	for stockRows.Next() {
		var productID string
		var qty int
		if err := stockRows.Scan(&productID, &qty); err != nil {
			_ = stockRows.Close()
			return nil, err
		}
		stockMap[productID] = qty
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, err
	}
	_ = stockRows.Close()

	// Re-validate every line under the row locks before mutating anything.
	for _, item := range sale.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidQuantity
		}
		if stockMap[item.ProductID] < item.Qty {
			return nil, store.ErrInsufficientStock
		}
	}

	for _, item := range sale.Items {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE branch_stocks
			SET qty = qty - $1, updated_at = now()
			WHERE branch_id = $2 AND product_id = $3
		`, item.Qty, sale.BranchID, item.ProductID)
		if err != nil {
			return nil, err
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

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, code, branch_id, customer_id, customer_name, cashier_id,
			total, payment_method, paid, change, status, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sale.ID, sale.Code, sale.BranchID, sale.CustomerID, sale.CustomerName, nullIfEmpty(sale.CashierID),
		sale.Total, sale.PaymentMethod, sale.Paid, sale.Change, sale.Status, sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	for _, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, product_id, product_name, qty, unit_price, line_total)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, item.ProductID, item.ProductName, item.Qty, item.UnitPrice, item.LineTotal)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, branchID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, branch_id, customer_id, customer_name, COALESCE(cashier_id,''),
			total, payment_method, paid, change, status, created_at
		FROM sales
		WHERE ($1 = '' OR branch_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, branchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.Code, &sale.BranchID, &sale.CustomerID, &sale.CustomerName, &sale.CashierID,
			&sale.Total, &sale.PaymentMethod, &sale.Paid, &sale.Change, &sale.Status, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return sales, nil
	}

	itemRows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, qty, unit_price, line_total
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itemMap := make(map[string][]domain.SaleLine, len(ids))
	for itemRows.Next() {
		var saleID string
		var line domain.SaleLine
		if err := itemRows.Scan(&saleID, &line.ProductID, &line.ProductName, &line.Qty, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, err
		}
		itemMap[saleID] = append(itemMap[saleID], line)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	for i := range sales {
		sales[i].Items = itemMap[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) GetSaleByID(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, branch_id, customer_id, customer_name, COALESCE(cashier_id,''),
			total, payment_method, paid, change, status, created_at
		FROM sales
		WHERE id = $1
	`, id).Scan(&sale.ID, &sale.Code, &sale.BranchID, &sale.CustomerID, &sale.CustomerName, &sale.CashierID,
		&sale.Total, &sale.PaymentMethod, &sale.Paid, &sale.Change, &sale.Status, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, product_name, qty, unit_price, line_total
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id ASC
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ProductID, &line.ProductName, &line.Qty, &line.UnitPrice, &line.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sale.Items = items
	return &sale, nil
}

func (s *Store) CreateTransfer(ctx context.Context, transfer domain.Transfer) (*domain.Transfer, error) {
	if transfer.ID == "" {
		transfer.ID = xid.New("t")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}
	transfer.UpdatedAt = transfer.CreatedAt
	transfer.Status = domain.TransferStatusPending
	transfer.Applied = false

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var available int
	err = pgTx.QueryRowContext(ctx, `
		SELECT qty
		FROM branch_stocks
		WHERE branch_id = $1 AND product_id = $2
	`, transfer.FromBranchID, transfer.ProductID).Scan(&available)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if available < transfer.Qty {
		return nil, store.ErrInsufficientStock
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transfers (
			id, product_id, product_name, from_branch_id, to_branch_id, qty,
			status, applied, note, created_by, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, transfer.ID, transfer.ProductID, transfer.ProductName, transfer.FromBranchID, transfer.ToBranchID, transfer.Qty,
		transfer.Status, transfer.Applied, nullIfEmpty(transfer.Note), nullIfEmpty(transfer.CreatedBy), transfer.CreatedAt, transfer.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	created := transfer
	return &created, nil
}

func (s *Store) GetTransferByID(ctx context.Context, id string) (*domain.Transfer, error) {
	var t domain.Transfer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, product_name, from_branch_id, to_branch_id, qty,
			status, applied, COALESCE(note,''), COALESCE(created_by,''), created_at, updated_at
		FROM transfers
		WHERE id = $1
	`, id).Scan(&t.ID, &t.ProductID, &t.ProductName, &t.FromBranchID, &t.ToBranchID, &t.Qty,
		&t.Status, &t.Applied, &t.Note, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func (s *Store) ListTransfers(ctx context.Context, branchID string, limit int) ([]domain.Transfer, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, from_branch_id, to_branch_id, qty,
			status, applied, COALESCE(note,''), COALESCE(created_by,''), created_at, updated_at
		FROM transfers
		WHERE ($1 = '' OR from_branch_id = $1 OR to_branch_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, branchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transfers := make([]domain.Transfer, 0, limit)
	for rows.Next() {
		var t domain.Transfer
		if err := rows.Scan(&t.ID, &t.ProductID, &t.ProductName, &t.FromBranchID, &t.ToBranchID, &t.Qty,
			&t.Status, &t.Applied, &t.Note, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		t.UpdatedAt = t.UpdatedAt.UTC()
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transfers, nil
}

func (s *Store) UpdateTransferStatus(ctx context.Context, id string, status string, apply bool, at time.Time) (*domain.Transfer, error) {
	return retrySerializable(func() (*domain.Transfer, error) {
		return s.updateTransferStatusTx(ctx, id, status, apply, at)
	})
}

func (s *Store) updateTransferStatusTx(ctx context.Context, id string, status string, apply bool, at time.Time) (*domain.Transfer, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var t domain.Transfer
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, product_id, product_name, from_branch_id, to_branch_id, qty,
			status, applied, COALESCE(note,''), COALESCE(created_by,''), created_at, updated_at
		FROM transfers
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&t.ID, &t.ProductID, &t.ProductName, &t.FromBranchID, &t.ToBranchID, &t.Qty,
		&t.Status, &t.Applied, &t.Note, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	// Every status change requires the transfer's references to still be
	// coherent, not just the completing one.
	if t.Qty < 1 {
		return nil, store.ErrInvalidTransferData
	}
	var refsOK bool
	err = pgTx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)
			AND EXISTS (SELECT 1 FROM branches WHERE id = $2)
			AND EXISTS (SELECT 1 FROM branches WHERE id = $3)
	`, t.ProductID, t.FromBranchID, t.ToBranchID).Scan(&refsOK)
	if err != nil {
		return nil, err
	}
	if !refsOK {
		return nil, store.ErrInvalidTransferData
	}

	// The caller's apply decision may be stale; re-check under the row lock
	// so a transfer is never applied twice (a concurrent completion or a
	// serialization retry would otherwise re-run the move).
	if apply && t.Applied {
		apply = false
	}

	if apply {
		var available int
		err = pgTx.QueryRowContext(ctx, `
			SELECT qty
			FROM branch_stocks
			WHERE branch_id = $1 AND product_id = $2
			FOR UPDATE
		`, t.FromBranchID, t.ProductID).Scan(&available)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if available < t.Qty {
			return nil, store.ErrInsufficientStock
		}

		_, err = pgTx.ExecContext(ctx, `
			UPDATE branch_stocks
			SET qty = qty - $1, updated_at = now()
			WHERE branch_id = $2 AND product_id = $3
		`, t.Qty, t.FromBranchID, t.ProductID)
		if err != nil {
			return nil, err
		}
		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO branch_stocks (branch_id, product_id, qty, updated_at)
			VALUES ($1,$2,$3,now())
			ON CONFLICT (branch_id, product_id)
			DO UPDATE SET qty = branch_stocks.qty + EXCLUDED.qty, updated_at = now()
		`, t.ToBranchID, t.ProductID, t.Qty)
		if err != nil {
			return nil, err
		}
		t.Applied = true
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE transfers
		SET status = $2, applied = $3, updated_at = $4
		WHERE id = $1
	`, id, status, t.Applied, at)
	if err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	t.Status = status
	t.UpdatedAt = at
	return &t, nil
}

func (s *Store) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if expense.ID == "" {
		expense.ID = xid.New("e")
	}
	if expense.CreatedAt.IsZero() {
		expense.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, branch_id, category, note, amount, expense_date, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, expense.ID, expense.BranchID, expense.Category, expense.Note, expense.Amount, expense.Date, expense.CreatedAt)
	if err != nil {
		return nil, err
	}
	created := expense
	return &created, nil
}

func (s *Store) ListExpenses(ctx context.Context, branchID string, limit int) ([]domain.Expense, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, branch_id, category, note, amount, expense_date, created_at
		FROM expenses
		WHERE ($1 = '' OR branch_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, branchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, limit)
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.ID, &e.BranchID, &e.Category, &e.Note, &e.Amount, &e.Date, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return expenses, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetDailyReport(ctx context.Context, branchID string, from time.Time, to time.Time) (domain.DailyReport, error) {
	report := domain.DailyReport{
		BranchID:   branchID,
		Date:       from.Format("2006-01-02"),
		GrossSales: decimal.Zero,
		Expenses:   decimal.Zero,
		ByPayment:  make([]domain.DailyReportPayment, 0, 4),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)::bigint, COALESCE(SUM(total),0)
		FROM sales
		WHERE branch_id = $1
			AND created_at >= $2
			AND created_at < $3
	`, branchID, from, to).Scan(&report.Sales, &report.GrossSales)
	if err != nil {
		return report, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount),0)
		FROM expenses
		WHERE branch_id = $1
			AND created_at >= $2
			AND created_at < $3
	`, branchID, from, to).Scan(&report.Expenses)
	if err != nil {
		return report, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payment_method, COUNT(*)::bigint, COALESCE(SUM(total),0)
		FROM sales
		WHERE branch_id = $1
			AND created_at >= $2
			AND created_at < $3
		GROUP BY payment_method
		ORDER BY payment_method
	`, branchID, from, to)
	if err != nil {
		return report, err
	}
	defer rows.Close()

	for rows.Next() {
		var row domain.DailyReportPayment
		if err := rows.Scan(&row.PaymentMethod, &row.Sales, &row.Total); err != nil {
			return report, err
		}
		report.ByPayment = append(report.ByPayment, row)
	}
	if err := rows.Err(); err != nil {
		return report, err
	}
	return report, nil
}

func (s *Store) CreateStaff(ctx context.Context, account domain.StaffAccount) error {
	account.StaffID = strings.ToUpper(strings.TrimSpace(account.StaffID))
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	if account.StaffID == "" || account.PasswordHash == "" {
		return store.ErrInvalidInput
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_accounts (id, staff_id, name, email, password_hash, role, branch_id, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, account.ID, account.StaffID, account.Name, nullIfEmpty(account.Email), account.PasswordHash, account.Role, account.BranchID, account.Status, account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListStaff(ctx context.Context) ([]domain.StaffAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, staff_id, name, COALESCE(email,''), password_hash, role, branch_id, status, created_at
		FROM staff_accounts
		ORDER BY staff_id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.StaffAccount, 0, 16)
	for rows.Next() {
		var a domain.StaffAccount
		if err := rows.Scan(&a.ID, &a.StaffID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.BranchID, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) FindStaffByLogin(ctx context.Context, login string) (*domain.StaffAccount, error) {
	var a domain.StaffAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, staff_id, name, COALESCE(email,''), password_hash, role, branch_id, status, created_at
		FROM staff_accounts
		WHERE staff_id = $1 OR email = $2
		LIMIT 1
	`, strings.ToUpper(strings.TrimSpace(login)), strings.ToLower(strings.TrimSpace(login))).Scan(
		&a.ID, &a.StaffID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.BranchID, &a.Status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

func (s *Store) UpdateStaffPassword(ctx context.Context, staffID string, passwordHash string) error {
	staffID = strings.ToUpper(strings.TrimSpace(staffID))
	if staffID == "" || passwordHash == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE staff_accounts
		SET password_hash = $2, updated_at = now()
		WHERE staff_id = $1
	`, staffID, passwordHash)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueProductIDs(items []domain.SaleLine) []string {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		set[item.ProductID] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// Serializable transactions can abort under contention (serialization
// failure or deadlock). One retry at the command boundary is enough for
// point-of-sale traffic; a second abort surfaces to the caller.
func retrySerializable[T any](fn func() (T, error)) (T, error) {
	out, err := fn()
	if err != nil && isSerializationFailure(err) {
		return fn()
	}
	return out, err
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

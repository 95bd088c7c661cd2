package repo

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-merch/internal/catalog"
	"github.com/noah-isme/backend-merch/internal/order"
	"github.com/noah-isme/backend-merch/internal/pricing"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// DBTX is the subset of pgxpool.Pool used by the Postgres adapters.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EnsureSchema creates the tables used by the service when missing.
func EnsureSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// PGCatalog serves products and combos from PostgreSQL.
type PGCatalog struct {
	DB DBTX
}

const findProductsSQL = `SELECT id, name, price, available FROM products WHERE id = ANY($1)`

// FindMany implements catalog.Lookup.
func (r PGCatalog) FindMany(ctx context.Context, ids []string, availableOnly bool) ([]catalog.Product, error) {
	ids = catalog.Distinct(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	query := findProductsSQL
	if availableOnly {
		query += ` AND available`
	}
	rows, err := r.DB.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Product, error) {
		var p catalog.Product
		err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Available)
		return p, err
	})
}

const activeCombosSQL = `SELECT id, name, combo_price, active, position, components
FROM combos WHERE active ORDER BY position, id`

// ActiveCombos implements catalog.ComboSource.
func (r PGCatalog) ActiveCombos(ctx context.Context) ([]catalog.ComboDefinition, error) {
	rows, err := r.DB.Query(ctx, activeCombosSQL)
	if err != nil {
		return nil, fmt.Errorf("query combos: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.ComboDefinition, error) {
		var (
			d          catalog.ComboDefinition
			components []byte
		)
		if err := row.Scan(&d.ID, &d.Name, &d.ComboPrice, &d.Active, &d.Position, &components); err != nil {
			return d, err
		}
		if err := json.Unmarshal(components, &d.Components); err != nil {
			return d, fmt.Errorf("decode combo %s components: %w", d.ID, err)
		}
		return d, nil
	})
}

// UpsertProduct inserts or replaces a product.
func (r PGCatalog) UpsertProduct(ctx context.Context, p catalog.Product) error {
	_, err := r.DB.Exec(ctx, `INSERT INTO products (id, name, price, available) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, available = EXCLUDED.available`,
		p.ID, p.Name, p.Price, p.Available)
	return err
}

// UpsertCombo inserts or replaces a combo definition.
func (r PGCatalog) UpsertCombo(ctx context.Context, d catalog.ComboDefinition) error {
	components, err := json.Marshal(d.Components)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `INSERT INTO combos (id, name, combo_price, active, position, components) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, combo_price = EXCLUDED.combo_price,
active = EXCLUDED.active, position = EXCLUDED.position, components = EXCLUDED.components`,
		d.ID, d.Name, d.ComboPrice, d.Active, d.Position, components)
	return err
}

// PGOrders persists orders in PostgreSQL. The unique index on order_code
// makes Insert the code claim.
type PGOrders struct {
	DB DBTX
}

const insertOrderSQL = `INSERT INTO orders (
	id, order_code, student_id, full_name, email, phone_number, school, additional_note,
	lines, total_amount, pricing_mode, combo_info, status, last_updated_by, status_history,
	created_at, status_updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

// Insert implements order.Store.
func (r PGOrders) Insert(ctx context.Context, o order.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("encode lines: %w", err)
	}
	history, err := json.Marshal(o.StatusHistory)
	if err != nil {
		return fmt.Errorf("encode status history: %w", err)
	}
	var comboInfo []byte
	if o.ComboInfo != nil {
		if comboInfo, err = json.Marshal(o.ComboInfo); err != nil {
			return fmt.Errorf("encode combo info: %w", err)
		}
	}
	c := o.Customer
	_, err = r.DB.Exec(ctx, insertOrderSQL,
		pgtype.UUID{Bytes: o.ID, Valid: true}, o.OrderCode,
		c.StudentID, c.FullName, c.Email, c.PhoneNumber, c.School, c.AdditionalNote,
		lines, o.TotalAmount, string(o.PricingMode), comboInfo,
		o.Status, o.LastUpdatedBy, history,
		o.CreatedAt, o.StatusUpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateCode
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

const findOrderSQL = `SELECT
	id, order_code, student_id, full_name, email, phone_number, school, additional_note,
	lines, total_amount, pricing_mode, combo_info, status, last_updated_by, status_history,
	created_at, status_updated_at
FROM orders WHERE order_code = $1`

// FindByCode implements order.Store.
func (r PGOrders) FindByCode(ctx context.Context, code string) (order.Order, error) {
	var (
		o                          order.Order
		id                         pgtype.UUID
		lines, comboInfo, history  []byte
		mode                       string
		createdAt, statusUpdatedAt time.Time
	)
	c := &o.Customer
	err := r.DB.QueryRow(ctx, findOrderSQL, code).Scan(
		&id, &o.OrderCode, &c.StudentID, &c.FullName, &c.Email, &c.PhoneNumber, &c.School, &c.AdditionalNote,
		&lines, &o.TotalAmount, &mode, &comboInfo, &o.Status, &o.LastUpdatedBy, &history,
		&createdAt, &statusUpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, ErrNotFound
	}
	if err != nil {
		return order.Order{}, fmt.Errorf("select order: %w", err)
	}
	if id.Valid {
		o.ID = uuid.UUID(id.Bytes)
	}
	o.PricingMode = pricing.Mode(mode)
	o.CreatedAt = createdAt.UTC()
	o.StatusUpdatedAt = statusUpdatedAt.UTC()
	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return order.Order{}, fmt.Errorf("decode lines: %w", err)
	}
	if err := json.Unmarshal(history, &o.StatusHistory); err != nil {
		return order.Order{}, fmt.Errorf("decode status history: %w", err)
	}
	if len(comboInfo) > 0 && string(comboInfo) != "null" {
		o.ComboInfo = &pricing.ComboInfo{}
		if err := json.Unmarshal(comboInfo, o.ComboInfo); err != nil {
			return order.Order{}, fmt.Errorf("decode combo info: %w", err)
		}
	}
	return o, nil
}

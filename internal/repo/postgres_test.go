package repo_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-merch/internal/order"
	"github.com/noah-isme/backend-merch/internal/pricing"
	"github.com/noah-isme/backend-merch/internal/repo"
)

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *pgtype.UUID:
			*p = r.values[i].(pgtype.UUID)
		case *string:
			*p = r.values[i].(string)
		case *[]byte:
			if r.values[i] != nil {
				*p = r.values[i].([]byte)
			}
		case *int64:
			*p = r.values[i].(int64)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type stubDB struct {
	execSQL  []string
	execArgs [][]any
	execErr  error
	row      stubRow
}

func (s *stubDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execSQL = append(s.execSQL, sql)
	s.execArgs = append(s.execArgs, args)
	return pgconn.NewCommandTag("INSERT 0 1"), s.execErr
}

func (s *stubDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (s *stubDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return s.row
}

func sampleOrder() order.Order {
	priced := pricing.Result{
		Mode:        pricing.ModeDerived,
		Lines:       []pricing.Line{{ProductID: "cap", ProductName: "Cap", UnitPrice: 90000, Quantity: 2, FromCombo: true, ComboID: "caps", ComboName: "Double Cap"}},
		TotalAmount: 180000,
		ComboInfo:   pricing.NewSingle(pricing.SingleCombo{ComboID: "caps", ComboName: "Double Cap", Savings: 20000}),
	}
	return order.NewOrder("ABCD2345", order.Customer{
		StudentID:   "S-1",
		FullName:    "Dina",
		Email:       "dina@example.com",
		PhoneNumber: "0812",
		School:      "SMA 1",
	}, priced, time.Date(2024, 8, 1, 8, 0, 0, 0, time.UTC))
}

func TestPGOrdersInsertEncodesDocument(t *testing.T) {
	db := &stubDB{}
	o := sampleOrder()
	require.NoError(t, repo.PGOrders{DB: db}.Insert(context.Background(), o))
	require.Len(t, db.execArgs, 1)

	args := db.execArgs[0]
	require.Len(t, args, 17)
	require.Equal(t, "ABCD2345", args[1])
	require.Equal(t, "derived", args[10])

	var info map[string]any
	require.NoError(t, json.Unmarshal(args[11].([]byte), &info))
	require.Equal(t, "single", info["mode"])
	require.Equal(t, "caps", info["comboId"])
}

func TestPGOrdersInsertWithoutComboInfoWritesNull(t *testing.T) {
	db := &stubDB{}
	o := sampleOrder()
	o.ComboInfo = nil
	require.NoError(t, repo.PGOrders{DB: db}.Insert(context.Background(), o))
	require.Nil(t, db.execArgs[0][11])
}

func TestPGOrdersInsertMapsUniqueViolation(t *testing.T) {
	db := &stubDB{execErr: &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_code_key"}}
	err := repo.PGOrders{DB: db}.Insert(context.Background(), sampleOrder())
	require.ErrorIs(t, err, repo.ErrDuplicateCode)
	require.ErrorIs(t, err, order.ErrDuplicateCode)

	boom := errors.New("connection refused")
	db = &stubDB{execErr: boom}
	err = repo.PGOrders{DB: db}.Insert(context.Background(), sampleOrder())
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, order.ErrDuplicateCode)
}

func TestPGOrdersFindByCodeDecodesRow(t *testing.T) {
	o := sampleOrder()
	lines, _ := json.Marshal(o.Lines)
	history, _ := json.Marshal(o.StatusHistory)
	info, _ := json.Marshal(o.ComboInfo)
	db := &stubDB{row: stubRow{values: []any{
		pgtype.UUID{Bytes: o.ID, Valid: true}, o.OrderCode,
		"S-1", "Dina", "dina@example.com", "0812", "SMA 1", "",
		lines, int64(180000), "derived", info, "confirmed", "system", history,
		o.CreatedAt, o.StatusUpdatedAt,
	}}}

	got, err := repo.PGOrders{DB: db}.FindByCode(context.Background(), "ABCD2345")
	require.NoError(t, err)
	require.Equal(t, o.ID, got.ID)
	require.Equal(t, o.Lines, got.Lines)
	require.Equal(t, pricing.ModeDerived, got.PricingMode)
	require.NotNil(t, got.ComboInfo)
	require.Equal(t, int64(20000), got.ComboInfo.Savings())
	require.Len(t, got.StatusHistory, 1)
	require.Equal(t, "Dina", got.Customer.FullName)
	require.NotEqual(t, uuid.Nil, got.ID)
}

func TestPGOrdersFindByCodeNotFound(t *testing.T) {
	db := &stubDB{row: stubRow{err: pgx.ErrNoRows}}
	_, err := repo.PGOrders{DB: db}.FindByCode(context.Background(), "NOPE2345")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestEnsureSchemaAppliesEveryStatement(t *testing.T) {
	db := &stubDB{}
	require.NoError(t, repo.EnsureSchema(context.Background(), db))
	require.GreaterOrEqual(t, len(db.execSQL), 4)
	joined := strings.Join(db.execSQL, "\n")
	require.Contains(t, joined, "orders_order_code_key")
	for _, stmt := range db.execSQL {
		require.NotEmpty(t, strings.TrimSpace(stmt))
	}
}

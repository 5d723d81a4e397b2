package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"

	"zoneatlas/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// --- Mock Rows for Query ---

type mockRows struct {
	data   [][]any
	idx    int
	closed bool
	errVal error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx]
	for i, d := range dest {
		assignMockValue(d, row[i])
	}
	return nil
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// assignMockValue copies a fixture value into a Scan destination for the
// types used by these repositories.
func assignMockValue(dest, val any) {
	switch d := dest.(type) {
	case *string:
		if val != nil {
			*d = val.(string)
		}
	case *int:
		if val != nil {
			*d = val.(int)
		}
	case **int:
		if val == nil {
			*d = nil
		} else {
			v := val.(int)
			*d = &v
		}
	case *bool:
		if val != nil {
			*d = val.(bool)
		}
	case *float64:
		if val != nil {
			*d = val.(float64)
		}
	case **float64:
		if val == nil {
			*d = nil
		} else {
			v := val.(float64)
			*d = &v
		}
	case *time.Time:
		if val != nil {
			*d = val.(time.Time)
		}
	case **time.Time:
		if val == nil {
			*d = nil
		} else {
			v := val.(time.Time)
			*d = &v
		}
	case *types.County:
		if val != nil {
			*d = types.County(val.(string))
		}
	case *types.UseStatus:
		if val != nil {
			*d = types.UseStatus(val.(string))
		}
	case *types.PurchaseState:
		if val != nil {
			*d = types.PurchaseState(val.(string))
		}
	default:
		assignUUIDValue(dest, val)
	}
}

func assignUUIDValue(dest, val any) {
	switch d := dest.(type) {
	case *uuid.UUID:
		if val != nil {
			*d = val.(uuid.UUID)
		}
	case **uuid.UUID:
		if val == nil {
			*d = nil
		} else {
			v := val.(uuid.UUID)
			*d = &v
		}
	}
}

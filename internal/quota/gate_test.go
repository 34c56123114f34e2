package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"vidgen/internal/domain"
)

type stubExecutor struct {
	remaining int
	err       error
	args      []any
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("not implemented")
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	s.args = args
	return stubRow{value: s.remaining, err: s.err}
}

func (s *stubExecutor) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

type stubRow struct {
	value int
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	ptr, ok := dest[0].(*int)
	if !ok {
		return errors.New("invalid dest")
	}
	*ptr = r.value
	return nil
}

func TestSQLGate(t *testing.T) {
	cases := []struct {
		remaining int
		cost      int
		want      bool
	}{
		{remaining: 3, cost: 1, want: true},
		{remaining: 1, cost: 1, want: true},
		{remaining: 0, cost: 1, want: false},
		{remaining: -2, cost: 1, want: false},
	}
	for _, tc := range cases {
		exec := &stubExecutor{remaining: tc.remaining}
		ok, err := NewSQLGate(exec, 5).CanDispatch(context.Background(), "owner-1", tc.cost)
		if err != nil {
			t.Fatalf("CanDispatch error: %v", err)
		}
		if ok != tc.want {
			t.Fatalf("remaining=%d cost=%d: got %v, want %v", tc.remaining, tc.cost, ok, tc.want)
		}
		if len(exec.args) != 2 || exec.args[0] != "owner-1" || exec.args[1] != 5 {
			t.Fatalf("unexpected args %v", exec.args)
		}
	}
}

func TestSQLGateErrors(t *testing.T) {
	_, err := NewSQLGate(&stubExecutor{}, 5).CanDispatch(context.Background(), " ", 1)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	boom := errors.New("db down")
	_, err = NewSQLGate(&stubExecutor{err: boom}, 5).CanDispatch(context.Background(), "owner-1", 1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestUnlimited(t *testing.T) {
	ok, err := Unlimited{}.CanDispatch(context.Background(), "anyone", 1000)
	if err != nil || !ok {
		t.Fatalf("Unlimited = %v, %v", ok, err)
	}
}

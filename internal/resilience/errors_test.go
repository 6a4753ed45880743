package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("relation does not exist"), false},
		{"explicit", NewTransientError(errors.New("x")), true},
		{"wrapped explicit", fmt.Errorf("outer: %w", NewTransientError(errors.New("x"))), true},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true},
		{"connection does not exist", &pgconn.PgError{Code: "08003"}, true},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, true},
		{"cannot connect now", &pgconn.PgError{Code: "57P03"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"syntax error", &pgconn.PgError{Code: "42601"}, false},
		{"eris wrapped pg error", eris.Wrap(&pgconn.PgError{Code: "08006"}, "postgres: get entry k"), true},
		{"network timeout", timeoutErr{}, true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"reset by peer text", errors.New("read tcp: Connection Reset By Peer"), true},
		{"broken pipe text", errors.New("write: broken pipe"), true},
		{"dns text", errors.New("dial tcp: lookup db: Temporary failure in name resolution"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	te := NewTransientError(inner)
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "inner", te.Error())
}

package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientHistory = errors.New("insufficient share history")
	ErrNoLotsFound         = errors.New("no buy transactions found")
	ErrUnknownMethod       = errors.New("unknown cost basis method")
	ErrUnknownType         = errors.New("unknown transaction type")
	ErrNonPositiveShares   = errors.New("shares to sell must be positive")
)

// InsufficientHistoryError names how many shares could not be matched to a lot.
type InsufficientHistoryError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient shares: requested %s, available %s, short by %s",
		e.Requested.String(), e.Available.String(), e.Shortfall.String())
}

func (e *InsufficientHistoryError) Is(target error) bool {
	return target == ErrInsufficientHistory
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid transaction: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsBusinessError reports whether err is a cost basis outcome that leaves
// the realized gain indeterminate instead of failing the write.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrInsufficientHistory) || errors.Is(err, ErrNoLotsFound)
}

package csvConverter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/shopspring/decimal"
)

var Header = []string{"date", "symbol", "type", "shares", "price", "fees", "cost_basis_method", "notes"}

var requiredColumns = []string{"date", "symbol", "type", "shares", "price"}

var ErrBadHeader = errors.New("csv header is missing required columns")

// Row is a decoded record and the line it started on.
type Row struct {
	Line  int
	Input model.TransactionInput
}

// ReadTransactions decodes every record after the header. Records that can't
// be decoded are reported per line instead of failing the whole read.
func ReadTransactions(r io.Reader) ([]Row, []model.ImportError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrBadHeader
		}
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}

	missing := make([]string, 0)
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrBadHeader, strings.Join(missing, ", "))
	}

	rows := make([]Row, 0)
	importErrors := make([]model.ImportError, 0)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			importErrors = append(importErrors, model.ImportError{Line: parseErr.Line, Message: parseErr.Err.Error()})
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}

		line, _ := reader.FieldPos(0)

		field := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		in := model.TransactionInput{
			Date:            field("date"),
			Symbol:          field("symbol"),
			Type:            field("type"),
			CostBasisMethod: field("cost_basis_method"),
			Notes:           field("notes"),
		}

		problems := make([]string, 0)
		for _, num := range []struct {
			name     string
			dst      *decimal.Decimal
			optional bool
		}{
			{"shares", &in.Shares, false},
			{"price", &in.Price, false},
			{"fees", &in.Fees, true},
		} {
			raw := field(num.name)
			if raw == "" && num.optional {
				continue
			}
			d, err := decimal.NewFromString(raw)
			if err != nil {
				problems = append(problems, num.name+": must be a number")
				continue
			}
			*num.dst = d
		}

		if len(problems) > 0 {
			importErrors = append(importErrors, model.ImportError{Line: line, Message: strings.Join(problems, "; ")})
			continue
		}

		rows = append(rows, Row{Line: line, Input: in})
	}

	return rows, importErrors, nil
}

// WriteTransactions writes txs in the order given, header first.
func WriteTransactions(w io.Writer, txs []model.Transaction) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(Header); err != nil {
		return err
	}

	for _, t := range txs {
		err := writer.Write([]string{
			t.Date.Format(model.DateLayout),
			t.Symbol,
			string(t.Type),
			t.Shares.String(),
			t.Price.String(),
			t.Fees.StringFixed(2),
			t.CostBasisMethod.String(),
			t.Notes,
		})
		if err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

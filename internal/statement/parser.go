package statement

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"royalties/internal/services"
	"royalties/internal/textutil"
)

// Format identifies an uploaded file layout.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// DetectFormat picks a format from the file extension.
func DetectFormat(fileName string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".tsv":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	}
	return "", services.Wrap(services.ErrValidation, "parse", "detect format", "unsupported file "+fileName, nil)
}

// Parser turns an uploaded file into statement rows.
type Parser interface {
	Parse(ctx context.Context, format Format, data []byte) ([]Row, error)
}

// column names a Row field a header may map to.
type column string

const (
	colTitle     column = "title"
	colWriter    column = "writer"
	colPerformer column = "performer"
	colISRC      column = "isrc"
	colISWC      column = "iswc"
	colWorkCode  column = "work_code"
	colAmount    column = "amount"
	colCurrency  column = "currency"
	colTerritory column = "territory"
	colUsageType column = "usage_type"
	colPeriod    column = "period"
	colRightType column = "right_type"
)

var headerAliases = map[string]column{
	"title":            colTitle,
	"work title":       colTitle,
	"song":             colTitle,
	"song title":       colTitle,
	"track":            colTitle,
	"track title":      colTitle,
	"composition":      colTitle,
	"writer":           colWriter,
	"writers":          colWriter,
	"composer":         colWriter,
	"composers":        colWriter,
	"songwriter":       colWriter,
	"author":           colWriter,
	"performer":        colPerformer,
	"artist":           colPerformer,
	"artist name":      colPerformer,
	"isrc":             colISRC,
	"iswc":             colISWC,
	"work code":        colWorkCode,
	"work id":          colWorkCode,
	"song code":        colWorkCode,
	"catalog number":   colWorkCode,
	"amount":           colAmount,
	"royalty":          colAmount,
	"royalties":        colAmount,
	"royalty amount":   colAmount,
	"net":              colAmount,
	"net amount":       colAmount,
	"earnings":         colAmount,
	"currency":         colCurrency,
	"territory":        colTerritory,
	"country":          colTerritory,
	"usage type":       colUsageType,
	"usage":            colUsageType,
	"source type":      colUsageType,
	"period":           colPeriod,
	"statement period": colPeriod,
	"right type":       colRightType,
	"rights type":      colRightType,
	"income type":      colRightType,
}

// TabularParser reads CSV and XLSX files whose first non-empty row is a
// header matching the alias table.
type TabularParser struct {
	// DefaultCurrency is applied to rows without a currency column.
	DefaultCurrency string
}

// NewTabularParser constructs a parser with the given fallback currency.
func NewTabularParser(defaultCurrency string) *TabularParser {
	return &TabularParser{DefaultCurrency: strings.ToUpper(strings.TrimSpace(defaultCurrency))}
}

// Parse decodes data and returns normalized rows numbered from 1.
func (p *TabularParser) Parse(ctx context.Context, format Format, data []byte) ([]Row, error) {
	var (
		records [][]string
		err     error
	)
	switch format {
	case FormatCSV:
		records, err = readCSV(data)
	case FormatXLSX:
		records, err = readXLSX(data)
	default:
		return nil, services.Wrap(services.ErrValidation, "parse", "read", fmt.Sprintf("unsupported format %q", format), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "parse", "read "+string(format), "", err)
	}
	return p.rowsFromRecords(ctx, records)
}

func (p *TabularParser) rowsFromRecords(ctx context.Context, records [][]string) ([]Row, error) {
	headerIdx := -1
	for i, record := range records {
		if !blankRecord(record) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, services.Wrap(services.ErrValidation, "parse", "header", "file is empty", nil)
	}
	header := records[headerIdx]
	columns := make([]column, len(header))
	seen := make(map[column]bool)
	for i, name := range header {
		key := textutil.NormalizeText(strings.TrimPrefix(name, "\ufeff"))
		if col, ok := headerAliases[key]; ok && !seen[col] {
			columns[i] = col
			seen[col] = true
		}
	}
	if !seen[colTitle] && !seen[colISRC] && !seen[colISWC] && !seen[colWorkCode] {
		return nil, services.Wrap(services.ErrValidation, "parse", "header",
			"no title or identifier column in header", nil)
	}

	rows := make([]Row, 0, len(records)-headerIdx-1)
	number := 0
	for _, record := range records[headerIdx+1:] {
		number++
		if number%500 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if blankRecord(record) {
			continue
		}
		row := Row{RowNumber: number, Raw: make(map[string]string, len(header)), Currency: p.DefaultCurrency}
		for i, value := range record {
			value = strings.TrimSpace(value)
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				row.Raw[strings.TrimSpace(header[i])] = value
			}
			if i >= len(columns) || columns[i] == "" {
				continue
			}
			if err := assign(&row, columns[i], value); err != nil {
				return nil, services.Wrap(services.ErrValidation, "parse", fmt.Sprintf("row %d", number), "", err)
			}
		}
		NormalizeRow(&row)
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, services.Wrap(services.ErrValidation, "parse", "rows", "file has a header but no data rows", nil)
	}
	return rows, nil
}

func assign(row *Row, col column, value string) error {
	switch col {
	case colTitle:
		row.Title = value
	case colWriter:
		row.Writer = value
	case colPerformer:
		row.Performer = value
	case colISRC:
		row.ISRC = value
	case colISWC:
		row.ISWC = value
	case colWorkCode:
		row.WorkCode = value
	case colAmount:
		amount, err := ParseAmount(value)
		if err != nil {
			return err
		}
		row.Amount = amount
	case colCurrency:
		if value != "" {
			row.Currency = strings.ToUpper(value)
		}
	case colTerritory:
		row.Territory = strings.ToUpper(value)
	case colUsageType:
		row.UsageType = value
	case colPeriod:
		row.Period = value
	case colRightType:
		row.RightType = value
	}
	return nil
}

// ParseAmount accepts plain decimals plus common decorations: currency
// symbols, thousands separators, and accounting-style parentheses.
func ParseAmount(value string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return decimal.Zero, nil
	}
	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}
	cleaned = strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+':
			return r
		}
		return -1
	}, cleaned)
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", value)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	if firstLine, _, _ := bytes.Cut(data, []byte("\n")); bytes.Count(firstLine, []byte("\t")) > bytes.Count(firstLine, []byte(",")) {
		reader.Comma = '\t'
	}
	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func readXLSX(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func blankRecord(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}

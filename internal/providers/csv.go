package providers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Header is the CSV header for providers.csv.
const Header = "code,name,feed_format,settlement_window_hours"

const (
	numFields = 4
	colCode   = 0
	colName   = 1
	colFormat = 2
	colWindow = 3
)

// ReadProviders reads the provider catalogue from a CSV reader.
func ReadProviders(r io.Reader) ([]Provider, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading providers CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	var out []Provider
	for i, rec := range records[1:] {
		p, err := unmarshalProvider(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// WriteProviders writes the catalogue (including header) to a writer.
func WriteProviders(w io.Writer, providers []Provider) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, p := range providers {
		row := []string{p.Code, p.Name, p.FeedFormat, strconv.Itoa(p.SettlementWindowHours)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return cw.Error()
}

func unmarshalProvider(rec []string) (Provider, error) {
	if rec[colCode] == "" {
		return Provider{}, fmt.Errorf("empty provider code")
	}
	window := 0
	if rec[colWindow] != "" {
		w, err := strconv.Atoi(rec[colWindow])
		if err != nil {
			return Provider{}, fmt.Errorf("parsing settlement window %q: %w", rec[colWindow], err)
		}
		window = w
	}
	return Provider{
		Code:                  rec[colCode],
		Name:                  rec[colName],
		FeedFormat:            rec[colFormat],
		SettlementWindowHours: window,
	}, nil
}

// Defaults returns the providers scaffolded by "daybook init".
func Defaults() []Provider {
	return []Provider{
		{Code: "grx", Name: "GreenRoute Express", FeedFormat: "settlement", SettlementWindowHours: 24},
		{Code: "payo", Name: "PayOcean", FeedFormat: "settlement", SettlementWindowHours: 48},
		{Code: "bank", Name: "Partner Bank", FeedFormat: "settlement"},
	}
}

package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gpib-manager/backend/internal/models"
)

// columnAliases maps accepted header spellings to canonical column names.
var columnAliases = map[string]string{
	"pulse_name":      "pulse_name",
	"name":            "pulse_name",
	"description":     "pulse_name",
	"frequency_hz":    "frequency_hz",
	"freq_hz":         "frequency_hz",
	"amplitude_vpp":   "amplitude_vpp",
	"ampl_vpp":        "amplitude_vpp",
	"offset_v":        "offset_v",
	"duty_cycle":      "duty_cycle",
	"trigger_delay_s": "trigger_delay_s",
	"delay_s":         "trigger_delay_s",
}

// PulseTableParser reads comma- or tab-separated pulse tables.
//
// With a header row, columns are matched by name. Without one, six columns
// are read in canonical order and five columns as the legacy layout that
// has no pulse name.
type PulseTableParser struct{}

func NewPulseTableParser() *PulseTableParser {
	return &PulseTableParser{}
}

func (p *PulseTableParser) Name() string {
	return "pulse_table"
}

func (p *PulseTableParser) CanParse(filePath string) (bool, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv", ".tsv", ".txt":
		return true, nil
	}
	return false, nil
}

func (p *PulseTableParser) Parse(filePath string) ([]models.PulseConfig, []*models.ParseError, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return ParsePulseTable(file)
}

// ParsePulseTable parses a pulse table from r. Malformed rows are skipped
// and reported; ErrNoPulses is returned when no row is usable.
func ParsePulseTable(r io.Reader) ([]models.PulseConfig, []*models.ParseError, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = sniffDelimiter(data)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	pulses := make([]models.PulseConfig, 0)
	warnings := make([]*models.ParseError, 0)
	var columns map[string]int

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			warnings = append(warnings, &models.ParseError{Line: perr.Line, Reason: perr.Err.Error()})
			continue
		}
		if err != nil {
			return nil, warnings, err
		}
		line, _ := cr.FieldPos(0)
		if isBlank(record) {
			continue
		}

		if columns == nil {
			if isHeader(record) {
				columns, err = headerColumns(record)
				if err != nil {
					return nil, warnings, fmt.Errorf("line %d: %w", line, err)
				}
				continue
			}
			columns = positionalColumns(len(record))
			if columns == nil {
				warnings = append(warnings, rowError(line, record, fmt.Sprintf("expected 5 or 6 columns, got %d", len(record))))
				continue
			}
		}

		pulse, reason := buildPulse(record, columns)
		if reason != "" {
			warnings = append(warnings, rowError(line, record, reason))
			continue
		}
		if pulse.Name == "" {
			pulse.Name = fmt.Sprintf("row %d", line)
		}
		pulses = append(pulses, pulse)
	}

	if len(pulses) == 0 {
		return nil, warnings, ErrNoPulses
	}
	return pulses, warnings, nil
}

func sniffDelimiter(data []byte) rune {
	for _, line := range bytes.Split(data, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 || trimmed[0] == '#' {
			continue
		}
		if bytes.ContainsRune(line, '\t') {
			return '\t'
		}
		break
	}
	return ','
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func isHeader(record []string) bool {
	for _, f := range record {
		if _, ok := columnAliases[normalizeColumn(f)]; ok {
			return true
		}
	}
	return false
}

func normalizeColumn(s string) string {
	s = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))
	return strings.ReplaceAll(s, " ", "_")
}

func headerColumns(record []string) (map[string]int, error) {
	columns := make(map[string]int, len(Columns))
	for i, f := range record {
		if name, ok := columnAliases[normalizeColumn(f)]; ok {
			columns[name] = i
		}
	}
	for _, name := range Columns[1:] {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("pulse table header is missing column %q", name)
		}
	}
	return columns, nil
}

func positionalColumns(n int) map[string]int {
	columns := make(map[string]int, len(Columns))
	switch n {
	case len(Columns):
		for i, name := range Columns {
			columns[name] = i
		}
	case len(Columns) - 1:
		for i, name := range Columns[1:] {
			columns[name] = i
		}
	default:
		return nil
	}
	return columns
}

// buildPulse returns the pulse for record, or a reason it is unusable.
func buildPulse(record []string, columns map[string]int) (models.PulseConfig, string) {
	var p models.PulseConfig
	if i, ok := columns["pulse_name"]; ok && i < len(record) {
		p.Name = strings.TrimSpace(record[i])
	}
	fields := []struct {
		column string
		dst    *float64
	}{
		{"frequency_hz", &p.FrequencyHz},
		{"amplitude_vpp", &p.AmplitudeVpp},
		{"offset_v", &p.OffsetV},
		{"duty_cycle", &p.DutyCycle},
		{"trigger_delay_s", &p.TriggerDelayS},
	}
	for _, f := range fields {
		i := columns[f.column]
		if i >= len(record) {
			return p, fmt.Sprintf("missing %s", f.column)
		}
		v, err := parseNumber(record[i])
		if err != nil {
			return p, fmt.Sprintf("%s: %v", f.column, err)
		}
		*f.dst = v
	}
	if err := p.Validate(); err != nil {
		return p, err.Error()
	}
	return p, ""
}

func rowError(line int, record []string, reason string) *models.ParseError {
	return &models.ParseError{
		Line:    line,
		Content: strings.Join(record, ","),
		Reason:  reason,
	}
}

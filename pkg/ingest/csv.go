// Package ingest turns raw dataset sources into a sealed, indexed store.
// It owns all parsing: the engine only ever sees typed records.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plantpulse/plantpulse/internal/model"
	"github.com/plantpulse/plantpulse/pkg/errors"
	"github.com/plantpulse/plantpulse/pkg/store"
)

// DefaultDelimiter is the field separator used by the plant's export tool.
const DefaultDelimiter = ';'

// Canonical column keys after header normalization. Spanish plant-floor
// headers map onto the same keys through columnAliases.
const (
	colDate            = "date"
	colShift           = "shift"
	colMachine         = "machine"
	colMachineGroup    = "machine_group"
	colOperator        = "operator"
	colRunID           = "run_id"
	colQuantity        = "quantity"
	colPlannedMinutes  = "planned_minutes"
	colDowntimeMinutes = "downtime_minutes"
	colDowntimeReason  = "downtime_reason"
	colIncidents       = "incidents"
)

var columnAliases = map[string]string{
	"fecha":                colDate,
	"turno":                colShift,
	"maquina":              colMachine,
	"máquina":              colMachine,
	"grupo_maquina":        colMachineGroup,
	"grupo_máquina":        colMachineGroup,
	"grupo_de_maquina":     colMachineGroup,
	"grupo_de_máquina":     colMachineGroup,
	"operario":             colOperator,
	"id_produccion":        colRunID,
	"id_producción":        colRunID,
	"idproduccion":         colRunID,
	"cantidad":             colQuantity,
	"minutos_planificados": colPlannedMinutes,
	"minutos_parada":       colDowntimeMinutes,
	"motivo_parada":        colDowntimeReason,
	"incidencias":          colIncidents,
	"reason":               colDowntimeReason,
	"downtime":             colDowntimeMinutes,
}

// nonWord is unicode-aware so accented headers keep their letters.
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// normalizeHeader lowercases, trims, and collapses non-word runs to a
// single underscore, then resolves known aliases.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = nonWord.ReplaceAllString(h, "_")
	h = strings.Trim(h, "_")
	if canonical, ok := columnAliases[h]; ok {
		return canonical
	}
	return h
}

// requiredColumns must resolve from the header for parsing to proceed.
var requiredColumns = []string{colDate, colMachine, colQuantity, colPlannedMinutes}

// Parser reads semicolon-delimited plant CSV into a store.
type Parser struct {
	delimiter rune
	logger    *zap.Logger
}

// NewParser creates a parser. A zero delimiter means DefaultDelimiter.
func NewParser(delimiter rune, logger *zap.Logger) *Parser {
	if delimiter == 0 {
		delimiter = DefaultDelimiter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{delimiter: delimiter, logger: logger}
}

// Parse reads all rows from r into a sealed store. Rows with unparseable
// dates are dropped and counted; unparseable numeric cells read as zero.
func (p *Parser) Parse(ctx context.Context, r io.Reader) (*store.Store, error) {
	cr := csv.NewReader(r)
	cr.Comma = p.delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New(errors.CodeInvalidFormat, "empty dataset")
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSourceRead, "failed to read header")
	}

	cols := make(map[string]int, len(header))
	normalized := make([]string, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		normalized[i] = key
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	for _, required := range requiredColumns {
		if _, ok := cols[required]; !ok {
			return nil, errors.MissingColumn(required, normalized)
		}
	}

	st := store.New()
	dropped := 0
	rowNum := 1

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.CodeCanceled, "ingestion canceled")
		default:
		}

		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeSourceRead, "failed to read row").
				WithContext("row", rowNum)
		}
		rowNum++

		cell := func(key string) string {
			idx, ok := cols[key]
			if !ok || idx >= len(fields) {
				return ""
			}
			return strings.TrimSpace(fields[idx])
		}

		date, err := parseDate(cell(colDate))
		if err != nil {
			dropped++
			p.logger.Debug("dropping row with invalid date",
				zap.Int("row", rowNum),
				zap.String("value", cell(colDate)))
			continue
		}

		rec := model.Record{
			Date:            date,
			Shift:           cell(colShift),
			Machine:         cell(colMachine),
			MachineGroup:    cell(colMachineGroup),
			Operator:        cell(colOperator),
			RunID:           cell(colRunID),
			Quantity:        parseInt(cell(colQuantity)),
			PlannedMinutes:  parseFloat(cell(colPlannedMinutes)),
			DowntimeMinutes: parseInt(cell(colDowntimeMinutes)),
			DowntimeReason:  cell(colDowntimeReason),
			IncidentCount:   parseInt(cell(colIncidents)),
		}
		if err := st.Append(rec); err != nil {
			return nil, err
		}
	}

	st.SetDropped(dropped)
	st.Seal()

	if dropped > 0 {
		p.logger.Warn("dropped rows with invalid dates", zap.Int("dropped", dropped))
	}
	return st, nil
}

var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"2006-01-02",
	"02-01-2006",
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New(errors.CodeInvalidDate, "empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, errors.New(errors.CodeInvalidDate, "unrecognized date format").
		WithContext("value", s)
}

// parseFloat accepts both dot and comma decimal separators.
func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	// Some exports write integral cells with a decimal tail.
	return int64(parseFloat(s))
}

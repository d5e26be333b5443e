package ingest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/plantpulse/plantpulse/pkg/errors"
)

func TestParseSpanishHeaders(t *testing.T) {
	csv := "Fecha;Turno;Máquina;Grupo Máquina;Operario;Id Producción;Cantidad;Minutos Planificados;Minutos Parada;Motivo Parada;Incidencias\n" +
		"15/03/2024;Mañana;EXT-01;Extrusion;lopez;R100;1200;480;30;Atasco;2\n"

	p := NewParser(0, nil)
	st, err := p.Parse(context.Background(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if st.Len() != 1 {
		t.Fatalf("Len = %d, want 1", st.Len())
	}
	if !st.Sealed() {
		t.Fatal("store must be sealed after parse")
	}

	r := st.At(0)
	if want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC); !r.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", r.Date, want)
	}
	if r.Shift != "Mañana" || r.Machine != "EXT-01" || r.MachineGroup != "Extrusion" {
		t.Errorf("dimension cells wrong: %+v", r)
	}
	if r.Operator != "lopez" || r.RunID != "R100" {
		t.Errorf("operator/run cells wrong: %+v", r)
	}
	if r.Quantity != 1200 || r.PlannedMinutes != 480 {
		t.Errorf("run cells wrong: qty=%d planned=%v", r.Quantity, r.PlannedMinutes)
	}
	if r.DowntimeMinutes != 30 || r.DowntimeReason != "Atasco" || r.IncidentCount != 2 {
		t.Errorf("downtime cells wrong: %+v", r)
	}
}

func TestParseEnglishHeaders(t *testing.T) {
	csv := "date;shift;machine;quantity;planned_minutes;downtime;reason\n" +
		"2024-03-15;Night;M1;10;60;5;Jam\n"

	p := NewParser(0, nil)
	st, err := p.Parse(context.Background(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	r := st.At(0)
	if r.DowntimeMinutes != 5 || r.DowntimeReason != "Jam" {
		t.Errorf("downtime/reason aliases not applied: %+v", r)
	}
}

func TestParseCommaDecimals(t *testing.T) {
	csv := "Fecha;Máquina;Cantidad;Minutos Planificados\n" +
		"01/02/2024;M1;100;487,5\n" +
		"01/02/2024;M2;12,0;60\n"

	p := NewParser(0, nil)
	st, err := p.Parse(context.Background(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := st.At(0).PlannedMinutes; got != 487.5 {
		t.Errorf("PlannedMinutes = %v, want 487.5", got)
	}
	if got := st.At(1).Quantity; got != 12 {
		t.Errorf("Quantity with decimal tail = %d, want 12", got)
	}
}

func TestParseDropsInvalidDates(t *testing.T) {
	csv := "fecha;maquina;cantidad;minutos_planificados\n" +
		"01/02/2024;M1;1;60\n" +
		"not-a-date;M1;2;60\n" +
		";M1;3;60\n" +
		"02/02/2024;M1;4;60\n"

	p := NewParser(0, nil)
	st, err := p.Parse(context.Background(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if st.Len() != 2 {
		t.Errorf("Len = %d, want 2", st.Len())
	}
	if got := st.Info().DroppedRows; got != 2 {
		t.Errorf("DroppedRows = %d, want 2", got)
	}
}

func TestParseMissingRequiredColumn(t *testing.T) {
	csv := "fecha;turno;cantidad;minutos_planificados\n" +
		"01/02/2024;M;1;60\n"

	p := NewParser(0, nil)
	_, err := p.Parse(context.Background(), strings.NewReader(csv))
	if errors.CodeOf(err) != errors.CodeMissingColumn {
		t.Errorf("err = %v, want CodeMissingColumn", err)
	}
}

func TestParseEmptyInput(t *testing.T) {
	p := NewParser(0, nil)
	_, err := p.Parse(context.Background(), strings.NewReader(""))
	if errors.CodeOf(err) != errors.CodeInvalidFormat {
		t.Errorf("err = %v, want CodeInvalidFormat", err)
	}
}

func TestParseShortRows(t *testing.T) {
	// Trailing optional cells may be missing entirely.
	csv := "fecha;maquina;cantidad;minutos_planificados;minutos_parada\n" +
		"01/02/2024;M1;5;60\n"

	p := NewParser(0, nil)
	st, err := p.Parse(context.Background(), strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := st.At(0).DowntimeMinutes; got != 0 {
		t.Errorf("missing trailing cell read as %d, want 0", got)
	}
}

func TestParseCanceled(t *testing.T) {
	csv := "fecha;maquina;cantidad;minutos_planificados\n" +
		"01/02/2024;M1;1;60\n"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewParser(0, nil)
	_, err := p.Parse(ctx, strings.NewReader(csv))
	if errors.CodeOf(err) != errors.CodeCanceled {
		t.Errorf("err = %v, want CodeCanceled", err)
	}
}

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"Fecha":              "date",
		"  Minutos Parada  ": "downtime_minutes",
		"Grupo de Máquina":   "machine_group",
		"Máquina":            "machine",
		"custom column (x)":  "custom_column_x",
		"MOTIVO_PARADA":      "downtime_reason",
		"planned_minutes":    "planned_minutes",
	}
	for in, want := range cases {
		if got := normalizeHeader(in); got != want {
			t.Errorf("normalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

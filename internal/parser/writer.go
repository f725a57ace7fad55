package parser

import (
	"encoding/csv"
	"io"

	"github.com/gpib-manager/backend/internal/models"
)

// WritePulseTable writes pulses with the canonical header. Use '\t' as
// delimiter when names contain commas.
func WritePulseTable(w io.Writer, pulses []models.PulseConfig, delimiter rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = delimiter
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, p := range pulses {
		row := []string{
			p.Name,
			FormatFloat(p.FrequencyHz),
			FormatFloat(p.AmplitudeVpp),
			FormatFloat(p.OffsetV),
			FormatFloat(p.DutyCycle),
			FormatFloat(p.TriggerDelayS),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

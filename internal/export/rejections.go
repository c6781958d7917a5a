// Package export renders rejection records as flat files for partner
// review.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/leadgrid/lead-engine/internal/model"
)

var rejectionHeader = []string{"row", "reason", "field", "value", "message"}

func rejectionCells(r model.RejectionRecord) []string {
	return []string{strconv.Itoa(r.Row), string(r.Reason), r.Field, r.Value, r.Message}
}

// WriteCSV writes rejections as CSV with a header row.
func WriteCSV(w io.Writer, rejections []model.RejectionRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rejectionHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, r := range rejections {
		if err := cw.Write(rejectionCells(r)); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes rejections as a single-sheet workbook.
func WriteXLSX(w io.Writer, rejections []model.RejectionRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Rejections")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range rejectionHeader {
		header.AddCell().SetString(h)
	}
	for _, r := range rejections {
		row := sheet.AddRow()
		row.AddCell().SetInt(r.Row)
		row.AddCell().SetString(string(r.Reason))
		row.AddCell().SetString(r.Field)
		row.AddCell().SetString(r.Value)
		row.AddCell().SetString(r.Message)
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

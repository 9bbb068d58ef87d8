package reportsvc

import (
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/vilmosmisota/sportapp/core/attendance"
)

const sheetName = "Attendance"

var headers = []string{"Last name", "First name", "Status", "Checked in at"}

// XLSXWriter renders session reports as excel workbooks.
type XLSXWriter struct{}

var _ attendance.ReportWriter = XLSXWriter{}

func NewXLSXWriter() XLSXWriter {
	return XLSXWriter{}
}

func (XLSXWriter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (XLSXWriter) Extension() string {
	return ".xlsx"
}

func (XLSXWriter) WriteReport(w io.Writer, rep attendance.Report) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = errors.Wrap(cErr, "closing workbook")
		}
	}()

	if err = f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheetName); err != nil {
		return errors.Wrap(err, "naming sheet")
	}

	title := rep.Team.Name + " - " + rep.Session.Date + " " + rep.Session.StartTime + "-" + rep.Session.EndTime
	if err = f.SetCellValue(sheetName, "A1", title); err != nil {
		return errors.Wrap(err, "setting title")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating style")
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		if err = f.SetCellValue(sheetName, cell, h); err != nil {
			return errors.Wrap(err, "setting header")
		}
	}
	if err = f.SetCellStyle(sheetName, "A1", "D3", bold); err != nil {
		return errors.Wrap(err, "styling header")
	}

	for i, row := range rep.Rows {
		status, checkedIn := "-", ""
		if row.Record != nil {
			status = string(row.Record.Status)
			if row.Record.CheckedInAt.Valid {
				checkedIn = row.Record.CheckedInAt.Time.UTC().Format("2006-01-02 15:04:05") + " UTC"
			}
		}
		cell := "A" + strconv.Itoa(i+4)
		values := []interface{}{row.Member.LastName, row.Member.FirstName, status, checkedIn}
		if err = f.SetSheetRow(sheetName, cell, &values); err != nil {
			return errors.Wrap(err, "writing row")
		}
	}
	if err = f.SetColWidth(sheetName, "A", "D", 22); err != nil {
		return errors.Wrap(err, "sizing columns")
	}

	_, err = f.WriteTo(w)
	return errors.Wrap(err, "writing workbook")
}

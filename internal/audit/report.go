// XLSX 报表输出：审计发现落成一个双 sheet 工作簿，便于流转给非工程同事
package audit

import (
	"github.com/xuri/excelize/v2"
)

// WriteXLSX：schema 与对象核对各占一个 sheet
// 约束：只在操作员显式给出路径时调用；写失败由调用方决定是否告警
func WriteXLSX(path string, schemaFindings, objectFindings []Finding) error {
	f := excelize.NewFile()
	defer f.Close()
	if err := writeSheet(f, "Schema", schemaFindings); err != nil {
		return err
	}
	if err := writeSheet(f, "Objects", objectFindings); err != nil {
		return err
	}
	// 删掉 excelize 默认创建的空 sheet
	_ = f.DeleteSheet("Sheet1")
	return f.SaveAs(path)
}

func writeSheet(f *excelize.File, name string, findings []Finding) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	header := []interface{}{"kind", "severity", "table/object", "column", "want", "got"}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}
	for i, fd := range findings {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{fd.Kind, fd.Severity, fd.Table, fd.Column, fd.Want, fd.Got}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"cmp"
	"slices"

	"github.com/bytedance/sonic"

	"github.com/vogtb/go-spreader/packages/spreadsheet"
)

type sizeJSON struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

type errorJSON struct {
	Error string `json:"error"`
	Code  uint32 `json:"code"`
}

type cellJSON struct {
	Cell    string    `json:"cell"`
	Value   any       `json:"value"`
	Formula *string   `json:"formula,omitempty"`
	Extent  *sizeJSON `json:"extent,omitempty"`
}

type sheetDump struct {
	Size             sizeJSON   `json:"size"`
	NonNullCellCount uint64     `json:"nonNullCellCount"`
	Cells            []cellJSON `json:"cells"`
}

// valueJSON converts a cell value to its JSON form. error values become
// objects so they cannot be mistaken for text.
func valueJSON(v spreadsheet.Primitive) any {
	if ev, ok := v.(*spreadsheet.ErrorValue); ok {
		return errorJSON{Error: ev.String(), Code: uint32(ev.Code())}
	}
	return v
}

func describeCell(sheet *spreadsheet.Sheet, p spreadsheet.Point) (cellJSON, error) {
	value, err := sheet.Value(p)
	if err != nil {
		return cellJSON{}, err
	}
	info, err := sheet.EditInfo(p)
	if err != nil {
		return cellJSON{}, err
	}
	out := cellJSON{Cell: p.String(), Value: valueJSON(value)}
	if info.Formula != nil {
		text := info.Formula.Text
		out.Formula = &text
		out.Extent = &sizeJSON{Width: info.Formula.Extent.Width, Height: info.Formula.Extent.Height}
	}
	return out, nil
}

// dumpSheet describes every non-empty cell of the sheet
func dumpSheet(sheet *spreadsheet.Sheet) (sheetDump, error) {
	size, err := sheet.Size()
	if err != nil {
		return sheetDump{}, err
	}
	count, err := sheet.NonNullCellCount()
	if err != nil {
		return sheetDump{}, err
	}
	dump := sheetDump{
		Size:             sizeJSON{Width: size.Width, Height: size.Height},
		NonNullCellCount: count,
		Cells:            []cellJSON{},
	}
	var points []spreadsheet.Point
	for p := range sheet.Cells() {
		points = append(points, p)
	}
	slices.SortFunc(points, func(a, b spreadsheet.Point) int {
		if a.Y != b.Y {
			return cmp.Compare(a.Y, b.Y)
		}
		return cmp.Compare(a.X, b.X)
	})
	for _, p := range points {
		cell, err := describeCell(sheet, p)
		if err != nil {
			return sheetDump{}, err
		}
		dump.Cells = append(dump.Cells, cell)
	}
	return dump, nil
}

func marshal(v any, indent bool) ([]byte, error) {
	if indent {
		return sonic.ConfigStd.MarshalIndent(v, "", "  ")
	}
	return sonic.Marshal(v)
}

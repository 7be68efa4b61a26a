package export

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/photolingo/photolingo/internal/analyze"
)

func TestExportXLSXLayout(t *testing.T) {
	result := &analyze.Result{
		RunID:   1,
		Partial: true,
		Tags: []analyze.TaggedItem{
			{
				Label: "cat", Score: 0.93,
				Translations: map[string]analyze.Entry{
					"ja": {Text: "猫", OK: true},
					"zh": {OK: false},
				},
			},
			{
				Label: "dog", Score: 0.81,
				Translations: map[string]analyze.Entry{
					"ja": {Text: "犬", OK: true},
					"zh": {Text: "狗", OK: true},
				},
			},
		},
	}

	data, err := NewService(nil).ExportXLSX(result, []string{"ja", "zh"})
	if err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	get := func(cell string) string {
		v, err := f.GetCellValue("Tags", cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s): %v", cell, err)
		}
		return v
	}

	if get("A1") != "Label" || get("B1") != "Score" || get("C1") != "ja" || get("D1") != "zh" {
		t.Fatalf("header row wrong: %q %q %q %q", get("A1"), get("B1"), get("C1"), get("D1"))
	}
	if get("A2") != "cat" || get("C2") != "猫" {
		t.Errorf("row 2 wrong: %q %q", get("A2"), get("C2"))
	}
	if get("D2") != "—" {
		t.Errorf("unavailable entry should render as dash, got %q", get("D2"))
	}
	if get("A3") != "dog" || get("D3") != "狗" {
		t.Errorf("row 3 wrong: %q %q", get("A3"), get("D3"))
	}
	if get("B2") != "93.0%" {
		t.Errorf("score formatting wrong: %q", get("B2"))
	}
}

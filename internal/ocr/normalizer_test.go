package ocr

import (
	"strings"
	"testing"
)

func TestBuildPreview(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   string
	}{
		{
			"пустой текст",
			"", 100,
			"",
		},
		{
			"только пробелы",
			"   \n\t  ", 100,
			"",
		},
		{
			"короткий текст без усечения",
			"Lieferschein Nr. 12345", 100,
			"Lieferschein Nr. 12345",
		},
		{
			"схлопывание пробелов и переводов строк",
			"Wareneingang\n\n  vom   02.05.2024", 100,
			"Wareneingang vom 02.05.2024",
		},
		{
			"усечение по границе слова",
			"Rechnung für die Lieferung von Ersatzteilen", 20,
			"Rechnung für die...",
		},
		{
			"текст ровно в лимит — без многоточия",
			"zwölf Zeichen", 13,
			"zwölf Zeichen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildPreview(tt.text, tt.maxLen)
			if got != tt.want {
				t.Errorf("buildPreview(%q, %d) = %q, ожидается %q",
					tt.text, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestBuildPreview_NeverExceedsLimit(t *testing.T) {
	long := strings.Repeat("Wort ", 200)
	maxLen := 50

	got := buildPreview(long, maxLen)

	// Лимит + многоточие — верхняя граница длины превью
	if len([]rune(got)) > maxLen+3 {
		t.Errorf("превью длиннее лимита: %d символов (лимит %d)", len([]rune(got)), maxLen)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("усечённое превью должно заканчиваться многоточием: %q", got)
	}
}

func TestCountPrintable(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"пусто", "", 0},
		{"пробелы не считаются", "  \n\t ", 0},
		{"латиница", "abc def", 6},
		{"умляуты", "über", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countPrintable(tt.text); got != tt.want {
				t.Errorf("countPrintable(%q) = %d, ожидается %d", tt.text, got, tt.want)
			}
		})
	}
}

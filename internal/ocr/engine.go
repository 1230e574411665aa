// Пакет ocr — OCR-нормализация PDF: встраивание текстового слоя
// и извлечение превью. Само распознавание делегируется внешнему
// движку через интерфейс Engine.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Engine — внешний OCR-движок.
// AddTextLayer распознаёт текст в inputPath и записывает PDF
// с встроенным текстовым слоем в outputPath.
type Engine interface {
	AddTextLayer(ctx context.Context, inputPath, outputPath string) error
}

// OCRmyPDFEngine — Engine поверх утилиты ocrmypdf.
type OCRmyPDFEngine struct {
	// Путь к бинарю ocrmypdf
	Binary string
	// Язык распознавания (tesseract language code, например "deu")
	Language string
}

// NewOCRmyPDFEngine создаёт движок поверх ocrmypdf.
func NewOCRmyPDFEngine(binary, language string) *OCRmyPDFEngine {
	return &OCRmyPDFEngine{Binary: binary, Language: language}
}

// AddTextLayer запускает ocrmypdf.
// --skip-text: страницы с существующим текстом пропускаются без ошибки,
// повторный запуск не дублирует текстовый слой.
func (e *OCRmyPDFEngine) AddTextLayer(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, e.Binary,
		"--language", e.Language,
		"--skip-text",
		"--output-type", "pdf",
		inputPath, outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ocrmypdf: таймаут: %w", ctx.Err())
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 500 {
			detail = detail[:500]
		}
		return fmt.Errorf("ocrmypdf завершился с ошибкой: %w: %s", err, detail)
	}

	return nil
}

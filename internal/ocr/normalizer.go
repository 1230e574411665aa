// normalizer.go — нормализация PDF: валидация, проверка существующего
// текстового слоя, запуск движка, извлечение превью и числа страниц.
package ocr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// minTextLayerChars — минимум печатных символов, при котором PDF
// считается уже содержащим текстовый слой.
const minTextLayerChars = 10

// Result — результат нормализации одного PDF.
type Result struct {
	// Короткое текстовое превью документа
	Preview string
	// Количество страниц
	PageCount int
	// true, если текстовый слой уже присутствовал и движок не запускался
	Skipped bool
}

// Normalizer — OCR-нормализатор PDF.
type Normalizer struct {
	engine        Engine
	timeout       time.Duration
	previewLength int
	logger        *slog.Logger
}

// NewNormalizer создаёт нормализатор.
func NewNormalizer(engine Engine, timeout time.Duration, previewLength int, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		engine:        engine,
		timeout:       timeout,
		previewLength: previewLength,
		logger:        logger.With(slog.String("component", "ocr_normalizer")),
	}
}

// Normalize выполняет OCR-нормализацию файла на месте.
// Идемпотентна: файл с существующим текстовым слоем не модифицируется.
// Любая ошибка означает, что файл не должен попадать в реестр.
func (n *Normalizer) Normalize(ctx context.Context, path string) (*Result, error) {
	// Валидация PDF до запуска движка: повреждённый файл —
	// ошибка распознавания, а не падение пайплайна.
	if err := api.ValidateFile(path, nil); err != nil {
		return nil, fmt.Errorf("повреждённый или неподдерживаемый PDF %q: %w", path, err)
	}

	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("подсчёт страниц %q: %w", path, err)
	}

	// Проверка существующего текстового слоя
	text, extractErr := extractText(path, n.previewLength*4)
	if extractErr != nil {
		n.logger.Debug("Не удалось извлечь текст до OCR",
			slog.String("path", path),
			slog.String("error", extractErr.Error()),
		)
	}

	if countPrintable(text) >= minTextLayerChars {
		n.logger.Info("Текстовый слой уже присутствует, OCR пропущен",
			slog.String("path", path),
		)
		return &Result{
			Preview:   buildPreview(text, n.previewLength),
			PageCount: pageCount,
			Skipped:   true,
		}, nil
	}

	// Запуск движка: вывод во временный файл, затем атомарная замена
	ocrCtx := ctx
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ocrCtx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}

	tmpPath := path + ".ocr.tmp"
	if err := n.engine.AddTextLayer(ocrCtx, path, tmpPath); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return nil, fmt.Errorf("распознавание %q: %w", path, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return nil, fmt.Errorf("замена файла после OCR %q: %w", path, err)
	}

	// Превью извлекается из уже нормализованного файла
	text, extractErr = extractText(path, n.previewLength*4)
	if extractErr != nil {
		n.logger.Warn("Не удалось извлечь превью после OCR",
			slog.String("path", path),
			slog.String("error", extractErr.Error()),
		)
	}

	return &Result{
		Preview:   buildPreview(text, n.previewLength),
		PageCount: pageCount,
	}, nil
}

// extractText извлекает до limit символов текстового слоя PDF.
// Библиотека паникует на некоторых повреждённых файлах — recover
// превращает панику в ошибку.
func extractText(path string, limit int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("извлечение текста из %q: %v", path, r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("открытие PDF %q: %w", path, err)
	}
	defer f.Close()

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("чтение текстового слоя %q: %w", path, err)
	}

	raw, err := io.ReadAll(io.LimitReader(plain, int64(limit)))
	if err != nil {
		return "", fmt.Errorf("чтение текста %q: %w", path, err)
	}

	return string(raw), nil
}

// countPrintable возвращает количество печатных не-пробельных символов.
func countPrintable(s string) int {
	count := 0
	for _, r := range s {
		if unicode.IsPrint(r) && !unicode.IsSpace(r) {
			count++
		}
	}
	return count
}

// buildPreview строит превью: схлопывает пробелы, обрезает до maxLen
// по границе слова и добавляет многоточие при усечении.
func buildPreview(text string, maxLen int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if collapsed == "" {
		return ""
	}

	runes := []rune(collapsed)
	if len(runes) <= maxLen {
		return collapsed
	}

	cut := string(runes[:maxLen])
	// Обрезаем по последнему пробелу, чтобы не рвать слово
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "..."
}

// document.go — модели документа и производных табличных записей.
package model

import "time"

// Document — зарегистрированный документ после OCR-нормализации.
// Создаётся пайплайном (sync или upload); категоризация мутирует только
// Category/SubCategory/Metadata; стадии scan/download документ не трогают.
type Document struct {
	// Идентификатор, назначается при создании, неизменяем
	ID int64 `json:"id"`
	// Исходное имя файла на удалённой стороне (или при upload)
	OriginalName string `json:"original_name"`
	// Путь к файлу в локальном хранилище
	StoragePath string `json:"-"`
	// Категория (пусто до классификации)
	Category string `json:"category,omitempty"`
	// Подкатегория — определяет наличие производных табличных данных
	SubCategory string `json:"sub_category,omitempty"`
	// Короткий текстовый превью, извлечённый при OCR
	Preview string `json:"preview,omitempty"`
	// Количество страниц PDF
	PageCount int `json:"page_count"`
	// Размер файла в байтах
	SizeBytes int64 `json:"size_bytes"`
	// Момент создания записи
	CreatedAt time.Time `json:"created_at"`
	// Произвольные метаданные (ключи уникальны)
	Metadata map[string]string `json:"metadata"`
}

// BatchRow — строка производных табличных данных (позиция накладной),
// извлечённая из CSV-вложения документа. Набор строк документа живёт
// только целиком: при каждом reimport полностью удаляется и создаётся заново.
type BatchRow struct {
	ID         int64 `json:"id"`
	DocumentID int64 `json:"document_id"`
	// Значения по именам колонок из BatchColumns
	Values map[string]string `json:"values"`
}

// BatchColumns — колонки производных записей закупочных партий.
// Имена соответствуют полям экспорта ERP и заголовкам CSV-вложений.
var BatchColumns = []string{
	"linr", "liname", "name1", "belfd", "tlnr", "auart", "aftnr",
	"aps", "absn", "atnr", "artikel", "materialnr", "urlnd", "wartarnr",
	"menge", "erfmenge", "gebindeme", "snnr", "snnralt", "einzelek",
	"lieferscheinnr", "lieferdatum", "renrex", "redat", "bidser", "bid",
}

// Пакет service — бизнес-логика Ingest Module.
// errors.go — таксономия ошибок сервисного слоя.
//
// Политика повторов:
//   - ErrValidation — не повторяется, возвращается вызывающему как есть
//   - ErrConnection — повторяется только следующим явным sync
//   - ErrTransfer, ErrOCR — файл остаётся вне реестра и естественным
//     образом повторяется следующим циклом
//   - ErrParse — транзакция reimport откатывается, прежний набор строк
//     сохраняется
package service

import "errors"

var (
	// ErrValidation — некорректные входные данные.
	ErrValidation = errors.New("некорректные входные данные")
	// ErrNotFound — документ или вложение не найдены.
	ErrNotFound = errors.New("не найдено")
	// ErrConnection — удалённая шара недоступна или аутентификация не прошла.
	ErrConnection = errors.New("ошибка подключения к удалённой шаре")
	// ErrTransfer — сбой передачи одного файла (несовпадение размера, таймаут).
	ErrTransfer = errors.New("ошибка передачи файла")
	// ErrOCR — сбой распознавания одного файла.
	ErrOCR = errors.New("ошибка распознавания")
	// ErrParse — некорректное содержимое CSV-вложения.
	ErrParse = errors.New("ошибка разбора CSV")
	// ErrSyncInFlight — цикл синхронизации уже выполняется.
	ErrSyncInFlight = errors.New("синхронизация уже выполняется")
)

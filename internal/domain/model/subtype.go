// subtype.go — реестр подкатегорий документов.
// Подкатегория декларативно описывает свои возможности; добавление нового
// подтипа — одна строка в реестре, без разбросанных строковых сравнений.
package model

// SubtypeSpec — возможности подкатегории документа.
type SubtypeSpec struct {
	// HasBatchData — подтип несёт CSV-вложения с производными
	// табличными данными; категоризация в такой подтип инициирует reimport.
	HasBatchData bool
}

// subtypeRegistry — статический реестр известных подкатегорий.
var subtypeRegistry = map[string]SubtypeSpec{
	"Lieferschein_extern": {HasBatchData: true},
	"Lieferschein_intern": {HasBatchData: false},
	"Wareneingang":        {HasBatchData: false},
}

// SubtypeHasBatchData возвращает true, если подкатегория несёт
// производные табличные данные. Неизвестные подкатегории — false.
func SubtypeHasBatchData(subCategory string) bool {
	return subtypeRegistry[subCategory].HasBatchData
}

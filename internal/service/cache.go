// cache.go — кэш разобранных CSV-вложений.
// Ключ включает путь, mtime и размер файла: изменение вложения на
// диске автоматически инвалидирует запись.
package service

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	csvCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "im_csv_cache_hits_total",
		Help: "Попадания в кэш разобранных CSV-вложений",
	})
	csvCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "im_csv_cache_misses_total",
		Help: "Промахи кэша разобранных CSV-вложений",
	})
)

// CSVCache — LRU-кэш разобранных CSV-вложений с TTL.
type CSVCache struct {
	lru *expirable.LRU[string, []map[string]string]
}

// NewCSVCache создаёт кэш на size записей с временем жизни ttl.
func NewCSVCache(size int, ttl time.Duration) *CSVCache {
	return &CSVCache{
		lru: expirable.NewLRU[string, []map[string]string](size, nil, ttl),
	}
}

// Load возвращает разобранные строки вложения, разбирая файл только
// при промахе кэша.
func (c *CSVCache) Load(path string) ([]map[string]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: вложение %q недоступно: %v", ErrParse, path, err)
	}

	key := fmt.Sprintf("%s|%d|%d", path, info.ModTime().UnixNano(), info.Size())
	if rows, ok := c.lru.Get(key); ok {
		csvCacheHits.Inc()
		return rows, nil
	}
	csvCacheMisses.Inc()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: открытие вложения %q: %v", ErrParse, path, err)
	}
	defer f.Close()

	rows, err := parseBatchCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}

	c.lru.Add(key, rows)
	return rows, nil
}

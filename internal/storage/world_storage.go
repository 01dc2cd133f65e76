package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/annel0/isoworld/internal/logging"
	"github.com/annel0/isoworld/internal/world"
	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const (
	metaPrefix = "meta:"
	mapPrefix  = "map:"
)

var (
	// ErrMapNotFound снимок с таким именем не сохранялся
	ErrMapNotFound = errors.New("карта не найдена")
	// ErrStoreClosed хранилище уже закрыто
	ErrStoreClosed = errors.New("хранилище не готово")
)

// SnapshotMeta описание сохранённого снимка карты
type SnapshotMeta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SavedAt     time.Time `json:"saved_at"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Layers      int       `json:"layers"`
	LayerHeight int       `json:"layer_height"`
	Tiles       int       `json:"tiles"`
	Cells       int       `json:"cells"`
	Compressed  bool      `json:"compressed"`
	Size        int       `json:"size"` // размер тела снимка в байтах после сжатия
}

// cellRecord занятый слот карты
type cellRecord struct {
	Column int             `json:"c"`
	Row    int             `json:"r"`
	Layer  int             `json:"l"`
	Tile   world.TileIndex `json:"t"`
}

// snapshot тело снимка: каталог плиток в порядке индексов и все ячейки
type snapshot struct {
	Tiles []world.Tile `json:"tiles"`
	Cells []cellRecord `json:"cells"`
}

// MapStore хранит снимки карт в BadgerDB.
// Под ключом meta:<имя> лежит SnapshotMeta в JSON, под map:<имя> тело снимка
// (JSON, при включённом сжатии в zstd).
type MapStore struct {
	db       *badger.DB
	dbPath   string
	compress bool

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mutex   sync.RWMutex
	isReady bool
	log     *logging.Logger
}

// NewMapStore открывает хранилище в каталоге dataPath/maps
func NewMapStore(dataPath string, compress bool) (*MapStore, error) {
	dbPath := filepath.Join(dataPath, "maps")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	store := &MapStore{
		db:       db,
		dbPath:   dbPath,
		compress: compress,
		isReady:  true,
		log:      logging.GetStorageLogger(),
	}

	store.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать zstd encoder: %w", err)
	}
	store.decoder, err = zstd.NewReader(nil)
	if err != nil {
		store.encoder.Close()
		db.Close()
		return nil, fmt.Errorf("не удалось создать zstd decoder: %w", err)
	}

	store.log.Info("Хранилище карт открыто: %s (сжатие: %v)", dbPath, compress)
	return store, nil
}

// Close закрывает хранилище
func (s *MapStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}

	s.isReady = false
	s.encoder.Close()
	s.decoder.Close()
	return s.db.Close()
}

// Save сохраняет снимок карты под именем name, перезаписывая прежний
func (s *MapStore) Save(name string, m *world.Map) (SnapshotMeta, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return SnapshotMeta{}, ErrStoreClosed
	}
	if name == "" {
		return SnapshotMeta{}, fmt.Errorf("пустое имя карты")
	}

	snap := snapshot{
		Tiles: make([]world.Tile, 0, m.Tiles().Len()),
		Cells: make([]cellRecord, 0, m.CellCount()),
	}
	m.Tiles().All(func(_ world.TileIndex, tile world.Tile) {
		snap.Tiles = append(snap.Tiles, tile)
	})
	for c, cell := range m.AllCells().All() {
		snap.Cells = append(snap.Cells, cellRecord{Column: c.Column, Row: c.Row, Layer: c.Layer, Tile: cell.Tile})
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка сериализации снимка: %w", err)
	}
	if s.compress {
		body = s.encoder.EncodeAll(body, nil)
	}

	meta := SnapshotMeta{
		ID:          uuid.New().String(),
		Name:        name,
		SavedAt:     time.Now().UTC(),
		Width:       m.Width(),
		Height:      m.Height(),
		Layers:      m.LayerCount(),
		LayerHeight: m.LayerHeight(),
		Tiles:       len(snap.Tiles),
		Cells:       len(snap.Cells),
		Compressed:  s.compress,
		Size:        len(body),
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка сериализации метаданных: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(metaPrefix+name), metaData); err != nil {
			return err
		}
		return txn.Set([]byte(mapPrefix+name), body)
	})
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}

	s.log.Info("Карта %q сохранена: %d ячеек, %d плиток, %d байт (id %s)",
		name, meta.Cells, meta.Tiles, meta.Size, meta.ID)
	return meta, nil
}

// Meta возвращает метаданные снимка
func (s *MapStore) Meta(name string) (SnapshotMeta, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return SnapshotMeta{}, ErrStoreClosed
	}

	var meta SnapshotMeta
	err := s.db.View(func(txn *badger.Txn) error {
		data, err := readValue(txn, metaPrefix+name)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, &meta)
	})
	if err != nil {
		return SnapshotMeta{}, s.wrapErr(name, err)
	}
	return meta, nil
}

// Load восстанавливает карту из снимка. Плитки добавляются в исходном порядке,
// поэтому индексы в ячейках остаются верными; ячейки проходят через очередь команд.
func (s *MapStore) Load(name string, opts ...world.Option) (*world.Map, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, ErrStoreClosed
	}

	var (
		meta SnapshotMeta
		body []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		data, err := readValue(txn, metaPrefix+name)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &meta); err != nil {
			return err
		}
		body, err = readValue(txn, mapPrefix+name)
		return err
	})
	if err != nil {
		return nil, s.wrapErr(name, err)
	}

	if meta.Compressed {
		body, err = s.decoder.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("ошибка распаковки снимка %q: %w", name, err)
		}
	}

	var snap snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("ошибка десериализации снимка %q: %w", name, err)
	}

	opts = append([]world.Option{world.WithLayerHeight(meta.LayerHeight)}, opts...)
	m := world.NewMap(meta.Width, meta.Height, meta.Layers, opts...)
	for _, tile := range snap.Tiles {
		m.Tiles().Append(tile)
	}
	for _, rec := range snap.Cells {
		c := world.CellCoord{Column: rec.Column, Row: rec.Row, Layer: rec.Layer}
		if err := m.CommandSet(c, world.Cell{Tile: rec.Tile}); err != nil {
			return nil, fmt.Errorf("снимок %q повреждён: %w", name, err)
		}
	}
	m.ApplyCommands()

	s.log.Info("Карта %q загружена: %d ячеек (id %s от %s)",
		name, m.CellCount(), meta.ID, meta.SavedAt.Format(time.RFC3339))
	return m, nil
}

// List возвращает метаданные всех снимков, отсортированные по имени
func (s *MapStore) List() ([]SnapshotMeta, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, ErrStoreClosed
	}

	var metas []SnapshotMeta
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(metaPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var meta SnapshotMeta
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			})
			if err != nil {
				return fmt.Errorf("ключ %s: %w", it.Item().Key(), err)
			}
			metas = append(metas, meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения списка карт: %w", err)
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas, nil
}

// Delete удаляет снимок
func (s *MapStore) Delete(name string) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return ErrStoreClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(metaPrefix + name)); err != nil {
			return err
		}
		if err := txn.Delete([]byte(metaPrefix + name)); err != nil {
			return err
		}
		return txn.Delete([]byte(mapPrefix + name))
	})
	if err != nil {
		return s.wrapErr(name, err)
	}

	s.log.Info("Карта %q удалена", name)
	return nil
}

func (s *MapStore) wrapErr(name string, err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%q: %w", name, ErrMapNotFound)
	}
	return fmt.Errorf("ошибка чтения карты %q из BadgerDB: %w", name, err)
}

func readValue(txn *badger.Txn, key string) ([]byte, error) {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

package tracking

import (
	"database/sql"
	"sync"
	"time"

	"github.com/medtrack/adherence/pkg/interfaces"
	"github.com/medtrack/adherence/pkg/logger"
	"github.com/medtrack/adherence/pkg/types"
)

// MedicineCache memoizes catalog lookups. It is passed into the catalog
// as an explicit dependency so tests can control it; misses are not
// cached, which lets a later refresh cycle resolve them.
type MedicineCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	medicine *types.Medicine
	cachedAt time.Time
}

// NewMedicineCache creates a cache with the given entry lifetime
func NewMedicineCache(ttl time.Duration) *MedicineCache {
	return &MedicineCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns a cached medicine if present and fresh
func (c *MedicineCache) Get(id string) (*types.Medicine, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	if !ok || time.Since(entry.cachedAt) > c.ttl {
		return nil, false
	}
	return entry.medicine, true
}

// Put stores a medicine in the cache
func (c *MedicineCache) Put(medicine *types.Medicine) {
	c.mu.Lock()
	c.entries[medicine.ID] = cacheEntry{medicine: medicine, cachedAt: time.Now()}
	c.mu.Unlock()
}

// Catalog implements the MedicineCatalog interface on PostgreSQL with a
// read-through cache
type Catalog struct {
	db     *sql.DB
	cache  *MedicineCache
	logger *logger.Logger
}

// NewCatalog creates a new medicine catalog
func NewCatalog(db *sql.DB, cache *MedicineCache, log *logger.Logger) interfaces.MedicineCatalog {
	return &Catalog{
		db:     db,
		cache:  cache,
		logger: log,
	}
}

// LookupMedicine resolves a medicine's display data by id
func (c *Catalog) LookupMedicine(id string) (*types.Medicine, error) {
	if med, ok := c.cache.Get(id); ok {
		return med, nil
	}

	query := `SELECT id, name, type, manufacturer, created_at FROM medicines WHERE id = $1`

	med := &types.Medicine{}
	err := c.db.QueryRow(query, id).Scan(
		&med.ID,
		&med.Name,
		&med.Type,
		&med.Manufacturer,
		&med.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, types.NewCatalogError(types.ErrCodeCatalogMiss, "medicine not found: "+id, err)
		}
		c.logger.WithMedicine(id).WithError(err).Error("Catalog lookup failed")
		return nil, types.NewCatalogError(types.ErrCodeCatalogMiss, "catalog lookup failed", err)
	}

	c.cache.Put(med)
	return med, nil
}

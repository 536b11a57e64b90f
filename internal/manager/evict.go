package manager

import "shrimp/internal/transform"

// storeInCache inserts a freshly transformed blob and then evicts
// oldest-touched entries while the byte total exceeds the budget. At least
// one entry always survives, so a blob bigger than the whole budget is
// still served from cache.
func (m *Manager) storeInCache(key transform.RequestKey, blob *transform.Blob) {
	updatedSize := m.cacheBytes + blob.Size()

	// No-op if the key is already present; the blob is identical content.
	m.cache.Insert(key, blob)
	m.cacheBytes = updatedSize

	for m.cacheBytes > MaxCacheBytes && m.cache.Size() > 1 {
		h, _ := m.cache.Oldest()
		m.cacheBytes -= h.Value().Size()
		m.cache.Erase(h)
	}
	m.updateCacheGauges()
}

// onClearCache is the periodic age sweep: erase oldest entries whose access
// time fell behind the age border. The chronological order guarantees the
// first young entry ends the sweep.
func (m *Manager) onClearCache() {
	threshold := m.now().Add(-MaxCacheAge)

	for !m.cache.Empty() {
		h, _ := m.cache.Oldest()
		if !h.AccessTime().Before(threshold) {
			break
		}
		m.cacheBytes -= h.Value().Size()
		m.cache.Erase(h)
	}
	m.updateCacheGauges()
}

func (m *Manager) updateCacheGauges() {
	cacheBytesGauge.Set(float64(m.cacheBytes))
	cacheEntriesGauge.Set(float64(m.cache.Size()))
}

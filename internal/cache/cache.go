// Package cache define la interfaz de cache byte-oriented con backends
// memory (dev/tests) y redis (producción).
package cache

import "time"

// Cache es un KV chico con TTL. Los adapters no devuelven errores: un miss
// y un backend caído se tratan igual (el caller va al storage real).
type Cache interface {
	Get(k string) ([]byte, bool)
	Set(k string, v []byte, ttl time.Duration)
	Delete(k string)
}

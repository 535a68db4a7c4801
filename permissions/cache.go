package permissions

import (
	"fmt"
	"time"

	"github.com/ReneKroon/ttlcache"
	"github.com/fernandosanchezjr/gousbhost/bus"
)

// CachedBroker reuses positive decisions from the wrapped broker for a
// bounded time. Denials are never cached, so a revoked grant takes effect on
// the next expiry and a newly granted device does not wait one out.
type CachedBroker struct {
	inner Broker
	cache *ttlcache.Cache
	ttl   time.Duration
}

func NewCachedBroker(inner Broker, ttl time.Duration) *CachedBroker {
	return &CachedBroker{
		inner: inner,
		cache: ttlcache.NewCache(),
		ttl:   ttl,
	}
}

func (cb *CachedBroker) Authorize(device *bus.DeviceDesc, interfaceID int) bool {
	key := fmt.Sprintf("%s/%d", device.Key(), interfaceID)
	if _, found := cb.cache.Get(key); found {
		return true
	}
	if !cb.inner.Authorize(device, interfaceID) {
		return false
	}
	cb.cache.SetWithTTL(key, true, cb.ttl)
	return true
}

// Forget drops any cached decision for the device/interface pair.
func (cb *CachedBroker) Forget(device *bus.DeviceDesc, interfaceID int) {
	cb.cache.Remove(fmt.Sprintf("%s/%d", device.Key(), interfaceID))
}

package permissions

import (
	"fmt"
	"time"

	"github.com/fernandosanchezjr/gousbhost/bus"
	log "github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"
)

var grantsBucket = []byte("grants")

// GrantStore persists granted (device, interface) pairs in bbolt, keyed by
// vendor:product:serial so grants survive re-attachment and daemon restarts.
// It implements Broker by answering exclusively from the stored grants.
type GrantStore struct {
	db *bbolt.DB
}

func NewGrantStore(db *bbolt.DB) *GrantStore {
	return &GrantStore{db: db}
}

func grantKey(device *bus.DeviceDesc, interfaceID int) []byte {
	return []byte(fmt.Sprintf("%s/%d", device.Key(), interfaceID))
}

func (gs *GrantStore) Grant(device *bus.DeviceDesc, interfaceID int) error {
	grantedAt, err := time.Now().UTC().MarshalBinary()
	if err != nil {
		return err
	}
	return gs.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(grantsBucket)
		if err != nil {
			return err
		}
		return bucket.Put(grantKey(device, interfaceID), grantedAt)
	})
}

func (gs *GrantStore) Revoke(device *bus.DeviceDesc, interfaceID int) error {
	return gs.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(grantsBucket)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(grantKey(device, interfaceID))
	})
}

func (gs *GrantStore) Has(device *bus.DeviceDesc, interfaceID int) bool {
	var found bool
	err := gs.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(grantsBucket)
		if bucket == nil {
			return nil
		}
		found = bucket.Get(grantKey(device, interfaceID)) != nil
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Error reading grant store")
		return false
	}
	return found
}

// Authorize accepts either an exact interface grant or a whole-device grant.
func (gs *GrantStore) Authorize(device *bus.DeviceDesc, interfaceID int) bool {
	if gs.Has(device, WholeDevice) {
		return true
	}
	if interfaceID == WholeDevice {
		return false
	}
	return gs.Has(device, interfaceID)
}

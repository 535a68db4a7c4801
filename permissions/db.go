package permissions

import (
	"github.com/fernandosanchezjr/gousbhost/utils"
	"go.etcd.io/bbolt"
	"path"
)

const DBPath = "db"

func GetDBPath() string {
	return path.Join(utils.GetSubFolder(DBPath), "grants.db")
}

func OpenDB() (*bbolt.DB, error) {
	return bbolt.Open(GetDBPath(), 0600, nil)
}

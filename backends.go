package magnolia

import (
	"time"

	"github.com/roach88/magnolia/driver"
	"github.com/roach88/magnolia/internal/boltstore"
	"github.com/roach88/magnolia/internal/docstore"
	"github.com/roach88/magnolia/internal/mongostore"
	"github.com/roach88/magnolia/internal/store"
)

// Mongo dials a MongoDB deployment at the chain's server address. A zero
// timeout uses the backend default for connect and server selection.
func Mongo(timeout time.Duration) driver.Dialer {
	return mongostore.Dialer{Timeout: timeout}
}

// SQLite stores each database as one SQLite file under dir.
func SQLite(dir string) driver.Dialer {
	return store.Dialer{Dir: dir}
}

// Bolt stores each database as one bbolt file under dir.
func Bolt(dir string) driver.Dialer {
	return boltstore.Dialer{Dir: dir, Timeout: time.Second}
}

// Memory keeps every database in process memory for the life of the
// returned Dialer.
func Memory() driver.Dialer {
	return docstore.NewMemory(nil)
}

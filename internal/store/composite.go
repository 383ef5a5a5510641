package store

import "errors"

// Composite pairs a session store with a record store so that together they
// serve everything the dialog engine and the delivery worker need.
type Composite struct {
	SessionStore
	RecordStore
}

// NewComposite combines sessions and records.
func NewComposite(sessions SessionStore, records RecordStore) *Composite {
	return &Composite{SessionStore: sessions, RecordStore: records}
}

// Close closes both stores.
func (c *Composite) Close() error {
	return errors.Join(c.SessionStore.Close(), c.RecordStore.Close())
}

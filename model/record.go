package model

import "time"

// StoredRecord is the persisted form of a Message.
//
// PersistedAt is assigned by the persisting side and is independent of the
// message's ReceivedAt. The JSON field names are the on-disk format of the
// file-backed store; the db tags map onto the relational "emails" table.
type StoredRecord struct {
	ID              int64     `json:"-" db:"id"`
	Address         string    `json:"address" db:"address"`
	TransformedBody string    `json:"encryptedBody" db:"encrypted_body"`
	Domain          string    `json:"domain,omitempty" db:"domain"`
	PersistedAt     time.Time `json:"timestamp" db:"created_at"`
}

// TableName returns the relational table name for StoredRecord.
func (r StoredRecord) TableName() string {
	return "emails"
}

// NewStoredRecord builds the record for a message, stamped with the current time.
func NewStoredRecord(msg Message) StoredRecord {
	return StoredRecord{
		Address:         msg.Address,
		TransformedBody: msg.TransformedBody,
		Domain:          msg.Domain,
		PersistedAt:     time.Now(),
	}
}

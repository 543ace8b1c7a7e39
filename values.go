package magnolia

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IDKey is the identifier field of every stored document.
const IDKey = "_id"

// ObjectID is the store's 12-byte document identifier.
type ObjectID = primitive.ObjectID

// NewObjectID generates a new identifier.
func NewObjectID() ObjectID {
	return primitive.NewObjectID()
}

// ObjectIDFromHex parses a 24 character hex identifier.
func ObjectIDFromHex(s string) (ObjectID, error) {
	return primitive.ObjectIDFromHex(s)
}

// Binary wraps data with a BSON binary subtype. Subtype 0 is generic.
func Binary(subtype byte, data []byte) primitive.Binary {
	return primitive.Binary{Subtype: subtype, Data: append([]byte(nil), data...)}
}

// Timestamp builds an internal replication timestamp.
func Timestamp(seconds, increment uint32) primitive.Timestamp {
	return primitive.Timestamp{T: seconds, I: increment}
}

// DateTime converts t to a millisecond precision BSON date.
func DateTime(t time.Time) primitive.DateTime {
	return primitive.NewDateTimeFromTime(t)
}

// Regex builds a pattern match value usable directly as a filter value.
func Regex(pattern, options string) primitive.Regex {
	return primitive.Regex{Pattern: pattern, Options: options}
}

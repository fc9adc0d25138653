package utils

import "github.com/google/uuid"

// IsUUID reports whether s parses as a UUID. Route ids are validated up
// front so bad ids become 400s instead of empty DB lookups.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

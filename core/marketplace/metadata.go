package marketplace

import "maps"

const (
	maxMetadataKeys     = 32
	maxMetadataKeyLen   = 64
	maxMetadataValueLen = 1024
)

// Metadata holds free-form annotations on tasks and transactions.
type Metadata map[string]string

// Validate enforces size limits only.
func (m Metadata) Validate() error {
	if len(m) > maxMetadataKeys {
		return ValidationError("metadata", "metadata has %d keys, max %d", len(m), maxMetadataKeys)
	}
	for k, v := range m {
		if k == "" {
			return ValidationError("metadata", "metadata key must not be empty")
		}
		if len(k) > maxMetadataKeyLen {
			return ValidationError("metadata", "metadata key %q exceeds %d bytes", k[:16]+"...", maxMetadataKeyLen)
		}
		if len(v) > maxMetadataValueLen {
			return ValidationError("metadata", "metadata value for %q exceeds %d bytes", k, maxMetadataValueLen)
		}
	}
	return nil
}

// Clone returns a copy, or nil for an empty map.
func (m Metadata) Clone() Metadata {
	if len(m) == 0 {
		return nil
	}
	return maps.Clone(m)
}

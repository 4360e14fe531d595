package cache

import (
	"strings"
)

// quotaKeyName is the key name under which the quota status is published.
const quotaKeyName = "quota"

// Key identifies one published record in Redis.
type Key struct {
	// Account is the configured account name.
	Account string

	// Name is a category name or "quota".
	Name string
}

// CategoryKey returns the key of a category entry.
func CategoryKey(account string, category Category) Key {
	return Key{Account: account, Name: string(category)}
}

// QuotaKey returns the key of the quota status.
func QuotaKey(account string) Key {
	return Key{Account: account, Name: quotaKeyName}
}

// String generates the Redis key.
// Format: discogs:<account>:<name>
//
// Example:
//
//	discogs:default:collection_count
func (k Key) String() string {
	account := strings.TrimSpace(k.Account)
	if account == "" {
		account = "default"
	}
	// Colons would split the namespace
	account = strings.ReplaceAll(account, ":", "_")
	return strings.Join([]string{"discogs", account, k.Name}, ":")
}

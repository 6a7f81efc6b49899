package redis

import (
	"strings"
)

const defaultKeyPrefix = "tokens"

// keyspace renders namespaced keys; an empty identifier yields an empty key.
type keyspace struct {
	prefix string
}

func newKeyspace(prefix string) keyspace {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return keyspace{prefix: prefix}
}

func (k keyspace) key(kind, id string) string {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return ""
	}
	return k.prefix + ":" + kind + ":" + trimmed
}

// Package nodes implements the node directory: the read-only mapping
// from a logical node name to its mesh network identifier and optional
// public key, as supplied by configuration.
//
// Example:
//
//	dir, err := nodes.NewDirectory([]nodes.Node{
//	    {Name: "yang", ID: 0x9e7656a8},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	node, err := dir.Resolve("yang")
package nodes

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is one entry in the directory. Immutable once loaded.
type Node struct {
	Name      string
	ID        uint32
	PublicKey []byte // optional, 32 bytes when present
}

// HasPublicKey reports whether the node published a key for
// end-to-end encrypted messages.
func (n Node) HasPublicKey() bool {
	return len(n.PublicKey) > 0
}

// HexID returns the node id in the mesh's "!xxxxxxxx" notation.
func (n Node) HexID() string {
	return fmt.Sprintf("!%08x", n.ID)
}

// ParseID parses a node id in either "!9e7656a8" hex notation or
// plain decimal.
func ParseID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty node id")
	}
	if strings.HasPrefix(s, "!") {
		id, err := strconv.ParseUint(s[1:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("bad hex node id %q: %w", s, err)
		}
		return uint32(id), nil
	}
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad node id %q: %w", s, err)
	}
	return uint32(id), nil
}

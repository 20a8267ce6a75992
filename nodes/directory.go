package nodes

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// ErrUnknownNode indicates a lookup for a name the directory does not
// contain. This is a caller usage error, not a delivery failure.
var ErrUnknownNode = errors.New("unknown node")

// Directory is the immutable node directory. All lookups are read-only
// and safe for concurrent use without locking.
type Directory struct {
	byName map[string]Node
	byID   map[uint32]Node
}

// NewDirectory builds a directory from the configured node list.
// Names and ids must be unique.
func NewDirectory(entries []Node) (*Directory, error) {
	if len(entries) == 0 {
		return nil, errors.New("empty node directory")
	}

	d := &Directory{
		byName: make(map[string]Node, len(entries)),
		byID:   make(map[uint32]Node, len(entries)),
	}
	for _, n := range entries {
		if n.Name == "" {
			return nil, fmt.Errorf("node %s has no name", n.HexID())
		}
		if _, dup := d.byName[n.Name]; dup {
			return nil, fmt.Errorf("duplicate node name %q", n.Name)
		}
		if prev, dup := d.byID[n.ID]; dup {
			return nil, fmt.Errorf("nodes %q and %q share id %s", prev.Name, n.Name, n.HexID())
		}
		d.byName[n.Name] = n
		d.byID[n.ID] = n
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewDirectory",
		"nodes":    len(entries),
	}).Info("Node directory loaded")

	return d, nil
}

// Resolve looks up a node by its logical name.
func (d *Directory) Resolve(name string) (Node, error) {
	n, ok := d.byName[name]
	if !ok {
		return Node{}, fmt.Errorf("%w: %q", ErrUnknownNode, name)
	}
	return n, nil
}

// ByID looks up a node by its mesh identifier, for rendering received
// events back to a name.
func (d *Directory) ByID(id uint32) (Node, bool) {
	n, ok := d.byID[id]
	return n, ok
}

// Names returns all node names in sorted order.
func (d *Directory) Names() []string {
	names := make([]string, 0, len(d.byName))
	for name := range d.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of directory entries.
func (d *Directory) Len() int {
	return len(d.byName)
}

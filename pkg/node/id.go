package node

import "strconv"

// ID identifies a node within one tree. IDs are small integers handed out by
// the tree's arena starting at 1; None is never a valid node.
type ID uint32

// None is the zero ID. It never names a node.
const None ID = 0

// Valid reports whether id can name a node.
func (id ID) Valid() bool { return id != None }

func (id ID) String() string {
	if id == None {
		return "none"
	}
	return strconv.FormatUint(uint64(id), 10)
}

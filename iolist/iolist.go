// Package iolist provides an order-preserving tree of byte fragments
// that is flattened on demand. Response bodies and rendered templates
// are built by composing nodes instead of concatenating strings, so a
// page assembled from many small pieces costs one pass at write time
// rather than a copy per join.
package iolist

import "io"

// Node is either a leaf holding raw bytes or an ordered sequence of
// child nodes. A node belongs to at most one parent: attaching it
// anywhere removes it from independent use, which is what makes
// flattening total (no cycles can be constructed).
type Node struct {
	leaf     []byte
	kids     []*Node
	attached bool
	size     int // cached byte length; -1 until computed
}

// Bytes returns a leaf node over b. A nil slice makes an empty leaf,
// same as Bytes([]byte{}). The slice is not copied; the
// caller must not modify it after handing it over.
func Bytes(b []byte) *Node {
	if b == nil {
		// Leaves are distinguished from sequences by a non-nil slice.
		b = []byte{}
	}
	return &Node{leaf: b, size: -1}
}

// Text returns a leaf node holding the UTF-8 bytes of s.
func Text(s string) *Node {
	return Bytes([]byte(s))
}

// Seq returns a sequence node owning the given children, in order.
// Nil children are skipped. Seq panics if any child is already
// attached elsewhere.
func Seq(kids ...*Node) *Node {
	n := &Node{size: -1}
	n.Append(kids...)
	return n
}

// Append attaches children to the end of a sequence node, in order,
// and returns the node for chaining. Nil children are skipped.
//
// Append panics if n is a leaf, if n has already been attached to
// another node, or if any child is already attached elsewhere. These
// are programming errors, not runtime conditions: the single-ownership
// rule is what guarantees flattening terminates.
func (n *Node) Append(kids ...*Node) *Node {
	if n.leaf != nil {
		panic("iolist: Append on a leaf node")
	}
	if n.attached {
		panic("iolist: Append on a node already attached to a parent")
	}
	for _, kid := range kids {
		if kid == nil {
			continue
		}
		if kid.attached {
			panic("iolist: node attached twice")
		}
		kid.attached = true
		n.kids = append(n.kids, kid)
	}
	n.size = -1
	return n
}

// Attached reports whether the node already belongs to a parent. A
// caller holding an attached node may still read it, but must copy
// (see Flat) before composing it anywhere else.
func (n *Node) Attached() bool {
	return n != nil && n.attached
}

// Len reports the total byte length of the flattened tree. The result
// is cached: once a tree's length has been asked for it is treated as
// frozen for sizing purposes.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	if n.size < 0 {
		if n.leaf != nil {
			n.size = len(n.leaf)
		} else {
			total := 0
			for _, kid := range n.kids {
				total += kid.Len()
			}
			n.size = total
		}
	}
	return n.size
}

// Flatten walks the tree depth-first, left to right, calling emit for
// each non-empty leaf chunk. Restart by calling Flatten again from the
// root.
func (n *Node) Flatten(emit func(chunk []byte)) {
	if n == nil {
		return
	}
	if n.leaf != nil {
		if len(n.leaf) > 0 {
			emit(n.leaf)
		}
		return
	}
	for _, kid := range n.kids {
		kid.Flatten(emit)
	}
}

// WriteTo implements io.WriterTo by flattening directly into w,
// chunk by chunk, with no intermediate buffer.
func (n *Node) WriteTo(w io.Writer) (int64, error) {
	var written int64
	err := n.writeTo(w, &written)
	return written, err
}

func (n *Node) writeTo(w io.Writer, written *int64) error {
	if n == nil {
		return nil
	}
	if n.leaf != nil {
		if len(n.leaf) == 0 {
			return nil
		}
		m, err := w.Write(n.leaf)
		*written += int64(m)
		return err
	}
	for _, kid := range n.kids {
		if err := kid.writeTo(w, written); err != nil {
			return err
		}
	}
	return nil
}

// Flat materializes the whole tree into one contiguous byte slice.
// The serve loop avoids this in favor of WriteTo; it exists for tests
// and for callers that genuinely need a single buffer.
func (n *Node) Flat() []byte {
	out := make([]byte, 0, n.Len())
	n.Flatten(func(chunk []byte) {
		out = append(out, chunk...)
	})
	return out
}

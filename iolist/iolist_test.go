package iolist

import (
	"bytes"
	"strings"
	"testing"
)

func TestLeafFlatten(t *testing.T) {
	n := Text("hello")
	if got := string(n.Flat()); got != "hello" {
		t.Errorf("Flat() = %q, want %q", got, "hello")
	}
	if n.Len() != 5 {
		t.Errorf("Len() = %d, want 5", n.Len())
	}
}

func TestNestedFlattenOrder(t *testing.T) {
	tree := Seq(
		Text("a"),
		Seq(Text("b"), Seq(Text("c"), Text("d"))),
		Text("e"),
	)
	if got := string(tree.Flat()); got != "abcde" {
		t.Errorf("Flat() = %q, want %q", got, "abcde")
	}
}

func TestFlattenAssociative(t *testing.T) {
	mk := func() (*Node, *Node, *Node) {
		return Text("left"), Text("mid"), Text("right")
	}

	a, b, c := mk()
	leftNested := Seq(a, Seq(b, c))

	a, b, c = mk()
	rightNested := Seq(Seq(a, b), c)

	if got, want := string(leftNested.Flat()), string(rightNested.Flat()); got != want {
		t.Errorf("association changed the byte sequence: %q vs %q", got, want)
	}
}

func TestLenCachedAndRecursive(t *testing.T) {
	tree := Seq(Text("ab"), Seq(Bytes([]byte("cde")), Text("")))
	if tree.Len() != 5 {
		t.Errorf("Len() = %d, want 5", tree.Len())
	}
	// Second call hits the cache and must agree.
	if tree.Len() != 5 {
		t.Errorf("cached Len() = %d, want 5", tree.Len())
	}
}

func TestWriteTo(t *testing.T) {
	tree := Seq(Text("chunk1 "), Text("chunk2"))
	var buf bytes.Buffer
	n, err := tree.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("WriteTo reported %d bytes, buffer has %d", n, buf.Len())
	}
	if buf.String() != "chunk1 chunk2" {
		t.Errorf("WriteTo wrote %q", buf.String())
	}
}

func TestNilAndEmptyChunksSkipped(t *testing.T) {
	tree := Seq(nil, Text(""), Text("x"), nil)
	count := 0
	tree.Flatten(func(chunk []byte) { count++ })
	if count != 1 {
		t.Errorf("Flatten emitted %d chunks, want 1", count)
	}
}

func TestDoubleAttachPanics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("attaching a node twice did not panic")
		}
		if !strings.Contains(r.(string), "attached twice") {
			t.Errorf("unexpected panic message: %v", r)
		}
	}()
	shared := Text("shared")
	Seq(shared)
	Seq(shared)
}

func TestAppendOnLeafPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Append on a leaf did not panic")
		}
	}()
	Text("leaf").Append(Text("kid"))
}

func TestAppendOnAttachedParentPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Append on an attached node did not panic")
		}
	}()
	inner := Seq(Text("a"))
	Seq(inner)
	inner.Append(Text("b"))
}

func TestBytesNilIsEmptyLeaf(t *testing.T) {
	n := Bytes(nil)
	if n.Len() != 0 {
		t.Errorf("Len() = %d, want 0", n.Len())
	}
	if got := n.Flat(); len(got) != 0 {
		t.Errorf("Flat() = %q, want empty", got)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("Append on a Bytes(nil) leaf did not panic")
		}
	}()
	n.Append(Text("kid"))
}

func TestNilNodeIsEmpty(t *testing.T) {
	var n *Node
	if n.Len() != 0 {
		t.Errorf("nil Len() = %d", n.Len())
	}
	n.Flatten(func([]byte) { t.Error("nil node emitted a chunk") })
}

func TestAttached(t *testing.T) {
	kid := Text("x")
	if kid.Attached() {
		t.Error("fresh node reports attached")
	}
	Seq(kid)
	if !kid.Attached() {
		t.Error("appended node reports unattached")
	}
	var nothing *Node
	if nothing.Attached() {
		t.Error("nil node reports attached")
	}
}

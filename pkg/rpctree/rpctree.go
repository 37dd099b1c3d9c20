// Package rpctree implements the typed RPC path tree (Design Notes §9
// "dynamic attribute synthesis from RPC discovery"): rather than
// synthesizing nested accessor objects from dot-separated RPC names at
// runtime, enumerated RPCs populate a tree keyed by path segment, with a
// single Call entry point.
package rpctree

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/twinleaf/tio-go/pkg/wire"
)

// Flags describes an RPC descriptor's access mode (spec.md §3 "RPC
// descriptor ... flags {readable, writable, stored, metadata-valid}").
type Flags uint8

const (
	Readable Flags = 1 << iota
	Writable
	Stored
	MetadataValid
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Caller is the underlying RPC transport a Tree dispatches through;
// *session.Session satisfies this without rpctree importing session,
// avoiding an import cycle (session imports rpctree to build the Tree in
// Connect).
type Caller interface {
	Rpc(ctx context.Context, topic string, payload []byte) ([]byte, error)
}

// Node is one path segment of the tree. A leaf carries a TypeTag and
// Flags; an interior node exists purely to group its children.
type Node struct {
	Name     string
	FullPath string
	Tag      wire.TypeTag
	Flags    Flags
	IsLeaf   bool
	Children map[string]*Node
}

func newNode(name, fullPath string) *Node {
	return &Node{Name: name, FullPath: fullPath, Children: make(map[string]*Node)}
}

// Tree is the root of the dot-path hierarchy, built from an enumerated
// RPC list (spec.md §4.4 Enumerating phase: `rpc.list`/`rpc.listinfo`).
type Tree struct {
	root   *Node
	caller Caller
}

// New builds a Tree from descriptors, one leaf per named RPC.
func New(caller Caller, descriptors []Descriptor) *Tree {
	t := &Tree{root: newNode("", ""), caller: caller}
	for _, d := range descriptors {
		t.insert(d)
	}
	return t
}

// Descriptor is one enumerated RPC: a dot-path name plus its type and
// access flags, as returned by rpc.list/rpc.listinfo.
type Descriptor struct {
	Name  string
	Tag   wire.TypeTag
	Flags Flags
}

func (t *Tree) insert(d Descriptor) {
	segments := strings.Split(d.Name, ".")
	cur := t.root
	path := ""
	for i, seg := range segments {
		if path == "" {
			path = seg
		} else {
			path = path + "." + seg
		}
		child, ok := cur.Children[seg]
		if !ok {
			child = newNode(seg, path)
			cur.Children[seg] = child
		}
		if i == len(segments)-1 {
			child.IsLeaf = true
			child.Tag = d.Tag
			child.Flags = d.Flags
		}
		cur = child
	}
}

// Lookup returns the node at the given dot-path, or nil if absent.
func (t *Tree) Lookup(path string) *Node {
	cur := t.root
	for _, seg := range strings.Split(path, ".") {
		next, ok := cur.Children[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// Root returns the tree's root node, for callers that want to walk the
// whole hierarchy (e.g. a CLI "list" command).
func (t *Tree) Root() *Node { return t.root }

// Call issues the RPC at path. If value is non-nil it is marshaled by the
// leaf's type tag and sent as the request argument; the reply is
// unmarshaled the same way. Call fails if path doesn't name a known leaf,
// or if value is supplied against a non-writable leaf.
func (t *Tree) Call(ctx context.Context, path string, value *wire.Value) (*wire.Value, error) {
	node := t.Lookup(path)
	if node == nil || !node.IsLeaf {
		return nil, fmt.Errorf("rpctree: no such rpc %q", path)
	}
	if value != nil && !node.Flags.Has(Writable) {
		return nil, fmt.Errorf("rpctree: %q is not writable", path)
	}

	var payload []byte
	if value != nil {
		b, err := value.Marshal()
		if err != nil {
			return nil, err
		}
		payload = b
	}

	reply, err := t.caller.Rpc(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	if len(reply) == 0 {
		return nil, nil
	}
	v, err := wire.UnmarshalValue(node.Tag, reply)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// rpcListFlag bits, as returned in the second byte of an rpc.listinfo
// reply (metadata-valid is the high bit; readable/writable/stored share
// the low nibble).
const (
	flagWritable      = 0x01
	flagReadable      = 0x02
	flagStored        = 0x04
	flagMetadataValid = 0x80
)

// Enumerate walks the rpc.list/rpc.listinfo handshake (spec.md §4.4
// Enumerating phase): rpc.list replies with a UINT16 count, then one
// rpc.listinfo call per index replies with `type: u8, flags: u8, name:
// UTF-8` (no length prefix — the name runs to the end of the payload).
func Enumerate(ctx context.Context, caller Caller) ([]Descriptor, error) {
	countRaw, err := caller.Rpc(ctx, "rpc.list", nil)
	if err != nil {
		return nil, fmt.Errorf("rpctree: rpc.list: %w", err)
	}
	if len(countRaw) < 2 {
		return nil, fmt.Errorf("rpctree: rpc.list: short reply (%d bytes)", len(countRaw))
	}
	count := binary.LittleEndian.Uint16(countRaw)

	descriptors := make([]Descriptor, 0, count)
	for i := uint16(0); i < count; i++ {
		arg := make([]byte, 2)
		binary.LittleEndian.PutUint16(arg, i)
		info, err := caller.Rpc(ctx, "rpc.listinfo", arg)
		if err != nil {
			return nil, fmt.Errorf("rpctree: rpc.listinfo(%d): %w", i, err)
		}
		if len(info) < 2 {
			return nil, fmt.Errorf("rpctree: rpc.listinfo(%d): short reply (%d bytes)", i, len(info))
		}
		tag := wire.TypeTag(info[0])
		rawFlags := info[1]
		name := string(info[2:])

		var flags Flags
		if rawFlags&flagReadable != 0 {
			flags |= Readable
		}
		if rawFlags&flagWritable != 0 {
			flags |= Writable
		}
		if rawFlags&flagStored != 0 {
			flags |= Stored
		}
		if rawFlags&flagMetadataValid != 0 {
			flags |= MetadataValid
		}
		descriptors = append(descriptors, Descriptor{Name: name, Tag: tag, Flags: flags})
	}
	return descriptors, nil
}

// Discover runs Enumerate and builds a Tree from the result in one step,
// the common case for a fresh session entering the Enumerating phase.
func Discover(ctx context.Context, caller Caller) (*Tree, error) {
	descriptors, err := Enumerate(ctx, caller)
	if err != nil {
		return nil, err
	}
	return New(caller, descriptors), nil
}

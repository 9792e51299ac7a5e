// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

import "github.com/cespare/xxhash/v2"

// Heap owns every allocation a VM instance makes: the intrusive all-objects
// list (§3 — threaded through each object's own header.next), the handle
// table that lets a NaN-boxed OBJ Value resolve back to a Go pointer in
// O(1), and the weak-keyed string intern table (§4.2).
type Heap struct {
	objects object // head of the all-objects list; nil means empty

	handles     []object // index == handle; a freed slot is nil
	freeHandles []uint32

	strings map[uint64][]*stringObj // hash -> interned candidates (collision chain)

	bytesAllocated uint64
	nextGC         uint64
	gcEnabled      bool
}

// GrowFactor is the multiplier applied to bytesAllocated after a full
// collection to compute the next collection threshold (§4.2).
const GrowFactor = 2

// DefaultNextGC is the initial collection threshold before the first
// collection has ever run.
const DefaultNextGC = 1 << 20 // 1 MiB

func newHeap() *Heap {
	return &Heap{
		strings:   make(map[uint64][]*stringObj),
		nextGC:    DefaultNextGC,
		gcEnabled: true,
	}
}

// resolve turns an object handle back into the live object. Handles are
// never reused for a different object while any reachable Value still names
// them: a handle goes back to the freelist only when sweep frees an object
// no marked Value reaches, so this is safe without a generation counter.
func (h *Heap) resolve(handle uint32) object {
	return h.handles[handle]
}

// reallocate is the single allocation/accounting primitive every typed
// constructor below funnels through (§4.2's "All allocation flows through a
// single reallocate primitive that maintains bytes_allocated"). delta may be
// negative (freeing).
func (h *Heap) reallocate(delta int64) {
	if delta >= 0 {
		h.bytesAllocated += uint64(delta)
		return
	}
	d := uint64(-delta)
	if d > h.bytesAllocated {
		h.bytesAllocated = 0
	} else {
		h.bytesAllocated -= d
	}
}

// link prepends obj to the all-objects list, assigns it a handle, and zeroes
// its mark bit. Every "new*" constructor in this file calls it exactly once,
// matching §4.2's "Object creation prepends the new object to the objects
// list and zeroes mark bits."
func (h *Heap) link(obj object, size uintptr) uint32 {
	hdr := obj.hdr()
	hdr.size = size
	hdr.isMarked = false
	hdr.next = h.objects
	h.objects = obj
	h.reallocate(int64(size))

	var handle uint32
	if n := len(h.freeHandles); n > 0 {
		handle = h.freeHandles[n-1]
		h.freeHandles = h.freeHandles[:n-1]
		h.handles[handle] = obj
	} else {
		handle = uint32(len(h.handles))
		h.handles = append(h.handles, obj)
	}
	hdr.handle = handle
	return handle
}

// releaseHandle drops an object's strong reference from the handle table so
// Go's own GC can reclaim its memory once nothing else holds it, and returns
// the handle to the freelist for reuse by a future allocation. It does not
// unlink obj from the all-objects list; sweep does that separately while
// walking it.
func (h *Heap) releaseHandle(obj object) {
	hdr := obj.hdr()
	h.reallocate(-int64(hdr.size))
	h.handles[hdr.handle] = nil
	h.freeHandles = append(h.freeHandles, hdr.handle)
}

// ---- Allocation entry points -------------------------------------------

func (h *Heap) newString(b []byte) *stringObj {
	s := &stringObj{bytes: b, hash: hashBytes(b), runeLen: runeCount(b)}
	s.tag = typeString
	h.link(s, uintptr(24+len(b)))
	return s
}

// copyString interns b: an existing String with identical bytes is reused
// (pointer equality holds — §8 Property 6), otherwise a fresh one is
// allocated and inserted with a *weak* intern-table entry (§4.2).
func (h *Heap) copyString(b []byte) *stringObj {
	hash := hashBytes(b)
	for _, cand := range h.strings[hash] {
		if string(cand.bytes) == string(b) {
			return cand
		}
	}
	s := h.newString(append([]byte(nil), b...))
	s.hash = hash
	h.strings[hash] = append(h.strings[hash], s)
	return s
}

// hashBytes implements the intern table's hash function using xxhash rather
// than a hand-rolled FNV-1a loop — see SPEC_FULL.md §2 for the grounding and
// the deliberate deviation from spec.md's "FNV-1a-style" wording.
func hashBytes(b []byte) uint64 { return xxhash.Sum64(b) }

func runeCount(b []byte) int {
	n := 0
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			i++
		case c>>5 == 0x6:
			i += 2
		case c>>4 == 0xE:
			i += 3
		case c>>3 == 0x1E:
			i += 4
		default:
			i++
		}
		n++
	}
	return n
}

func (h *Heap) newInt64(v int64) *int64Obj {
	o := &int64Obj{v: v}
	o.tag = typeInt64
	h.link(o, 16)
	return o
}

func (h *Heap) newFunction(fn *functionObj) *functionObj {
	fn.tag = typeFunction
	h.link(fn, 64)
	return fn
}

func (h *Heap) newClosure(fn *functionObj, upvalues []*upvalueObj) *closureObj {
	c := &closureObj{fn: fn, upvalues: upvalues}
	c.tag = typeClosure
	h.link(c, uintptr(16+8*len(upvalues)))
	return c
}

func (h *Heap) newUpvalue(location int) *upvalueObj {
	u := &upvalueObj{state: upvalueOpen, location: location}
	u.tag = typeUpvalue
	h.link(u, 32)
	return u
}

func (h *Heap) newListCap(cap int) *listObj {
	l := &listObj{elems: make([]Value, 0, cap)}
	l.tag = typeList
	h.link(l, uintptr(24+8*cap))
	return l
}

func (h *Heap) newMap() *mapObj {
	m := newMapObj()
	m.tag = typeMap
	h.link(m, 48)
	return m
}

func (h *Heap) newDispatcher(name string) *dispatcherObj {
	d := &dispatcherObj{name: name, byArity: make(map[int]*nativeFunctionObj)}
	d.tag = typeDispatcher
	h.link(d, 32)
	return d
}

func (h *Heap) newNativeFunction(sig nativeSignature, fn nativeFn) *nativeFunctionObj {
	n := &nativeFunctionObj{sig: sig, fn: fn}
	n.tag = typeNativeFunction
	h.link(n, 32)
	return n
}

func (h *Heap) newNativeContext(userData any, finalize func(any)) *nativeContextObj {
	c := &nativeContextObj{userData: userData, finalize: finalize}
	c.tag = typeNativeContext
	h.link(c, 32)
	return c
}

func (h *Heap) newNativeClosure(fn *nativeFunctionObj, ctx *nativeContextObj) *nativeClosureObj {
	c := &nativeClosureObj{fn: fn, ctx: ctx}
	c.tag = typeNativeClosure
	h.link(c, 24)
	return c
}

func (h *Heap) newNativeReference(ctx *nativeContextObj, get func(any) Value, set func(any, Value)) *nativeReferenceObj {
	r := &nativeReferenceObj{ctx: ctx, get: get, set: set}
	r.tag = typeNativeReference
	h.link(r, 32)
	return r
}

func (h *Heap) newReference(kind refKind) *referenceObj {
	r := &referenceObj{kind: kind}
	r.tag = typeReference
	h.link(r, 48)
	return r
}

func (h *Heap) newStructSchema(name string, fieldNames []string) *structSchemaObj {
	idx := make(map[string]int, len(fieldNames))
	for i, n := range fieldNames {
		idx[n] = i
	}
	s := &structSchemaObj{name: name, fieldNames: fieldNames, fieldIndex: idx}
	s.tag = typeStructSchema
	h.link(s, uintptr(32+16*len(fieldNames)))
	return s
}

func (h *Heap) newStructInstance(schema *structSchemaObj) *structInstanceObj {
	s := &structInstanceObj{schema: schema, fields: make([]Value, len(schema.fieldNames))}
	s.tag = typeStructInstance
	h.link(s, uintptr(16+8*len(schema.fieldNames)))
	return s
}

func (h *Heap) newEnumSchema(name string, variants []string, typeID uint16) *enumSchemaObj {
	e := &enumSchemaObj{name: name, variantNames: variants, typeID: typeID}
	e.tag = typeEnumSchema
	h.link(e, uintptr(32+16*len(variants)))
	return e
}

func (h *Heap) newPromptTag(id uint32, name string) *promptTagObj {
	p := &promptTagObj{id: id, name: name}
	p.tag = typePromptTag
	h.link(p, 24)
	return p
}

func (h *Heap) newContinuation() *continuationObj {
	c := &continuationObj{}
	c.tag = typeContinuation
	h.link(c, 64)
	return c
}

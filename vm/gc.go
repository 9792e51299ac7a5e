// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

// collector runs one mark-sweep cycle over a VM's heap: mark roots, blacken
// the gray stack until it drains, clean the weak string-intern table of
// now-dead entries, then sweep the all-objects list (§4.3).
type collector struct {
	vm   *VM
	heap *Heap
	gray []object
}

// Collect runs one full mark-sweep cycle unconditionally — an explicit
// request (GC.cycle(), a direct VM.Collect() call from a host) always runs
// even while automatic collection is disabled via Heap.SetGCEnabled. It must
// only be called at a GC safe point (never mid-opcode — §4.3's "collection
// only happens between instructions, at explicit safe points").
func (vm *VM) Collect() error {
	if vm.gcRunning {
		return vm.runtimeErrorf(KindFatal, ErrGCReentrant, "GC.cycle() called while a collection is already in progress")
	}
	vm.gcRunning = true
	defer func() { vm.gcRunning = false }()

	h := vm.heap
	gc := &collector{vm: vm, heap: h}
	gc.markRoots()
	gc.blackenAll()
	gc.cleanWeakStrings()
	freed := gc.sweep()
	h.nextGC = h.bytesAllocated * GrowFactor
	if h.nextGC < DefaultNextGC {
		h.nextGC = DefaultNextGC
	}
	_ = freed
	return nil
}

// maybeCollect triggers a cycle if bytesAllocated has crossed nextGC. Step
// invokes this after every instruction it executes, not only after RET,
// native calls or loop back-edges (see §4.9).
func (vm *VM) maybeCollect() error {
	if !vm.heap.gcEnabled {
		return nil
	}
	if vm.heap.bytesAllocated < vm.heap.nextGC {
		return nil
	}
	return vm.Collect()
}

// markRoots marks every GC root: the live value stack slots up to the
// current stack top, every active call frame's closure, every open upvalue,
// the globals table, the prompt stack's tags, and any temp-roots pushed by a
// native function currently on the call stack (§4.3, §5's temp-root
// discipline).
func (gc *collector) markRoots() {
	vm := gc.vm
	for i := 0; i < vm.stackTop; i++ {
		gc.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		if vm.frames[i].closure != nil {
			gc.markObject(vm.frames[i].closure)
		}
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.nextOpen {
		gc.markObject(uv)
	}
	for name, v := range vm.globals {
		_ = name
		gc.markValue(v)
	}
	for _, p := range vm.prompts {
		if p.tag != nil {
			gc.markObject(p.tag)
		}
	}
	for _, v := range vm.tempRoots {
		gc.markValue(v)
	}
}

// markValue marks v if it is an object reference; numbers, bools, null, enum
// values, and the two sentinels need no marking.
func (gc *collector) markValue(v Value) {
	if !v.IsObject() {
		return
	}
	gc.markObject(gc.heap.resolve(v.handle()))
}

// markObject marks obj black-pending (isMarked=true, pushed to the gray
// stack for later blackening) unless it is nil or already marked.
func (gc *collector) markObject(obj object) {
	if obj == nil {
		return
	}
	hdr := obj.hdr()
	if hdr.isMarked {
		return
	}
	hdr.isMarked = true
	gc.gray = append(gc.gray, obj)
}

// markChunkConstants marks every object-valued entry in a chunk's constant
// pool; functionObj.blacken calls this for its own chunk.
func (gc *collector) markChunkConstants(chunk *Chunk) {
	for _, v := range chunk.Constants {
		gc.markValue(v)
	}
}

// blackenAll drains the gray stack, visiting each object's own references in
// turn, until nothing gray remains.
func (gc *collector) blackenAll() {
	for len(gc.gray) > 0 {
		n := len(gc.gray) - 1
		obj := gc.gray[n]
		gc.gray = gc.gray[:n]
		obj.blacken(gc)
	}
}

// cleanWeakStrings drops intern-table entries for strings that did not
// survive marking, implementing §4.2's tableRemoveWhite: the intern table
// holds a weak reference, so an interned string with no other referent is
// collected like any other unreachable object.
func (gc *collector) cleanWeakStrings() {
	for hash, bucket := range gc.heap.strings {
		kept := bucket[:0]
		for _, s := range bucket {
			if s.hdr().isMarked {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(gc.heap.strings, hash)
		} else {
			gc.heap.strings[hash] = kept
		}
	}
}

// sweep walks the all-objects list once, unlinking and releasing every
// unmarked object and clearing the mark bit on every survivor, and returns
// the number of objects freed.
func (gc *collector) sweep() int {
	h := gc.heap
	var survivors object
	freed := 0
	for cur := h.objects; cur != nil; {
		next := cur.hdr().next
		if cur.hdr().isMarked {
			cur.hdr().isMarked = false
			cur.hdr().next = survivors
			survivors = cur
		} else {
			if nc, ok := cur.(*nativeContextObj); ok && nc.finalize != nil {
				nc.finalize(nc.userData)
			}
			h.releaseHandle(cur)
			freed++
		}
		cur = next
	}
	h.objects = survivors
	return freed
}

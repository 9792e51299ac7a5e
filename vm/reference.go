// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

// makeRef builds a first-class Reference from a MAKE_REF instruction's
// operands. The addressing mode is encoded in C: 0=local slot B, 1=global
// (B names a constant-pool string index stashed in B by the compiler),
// 2=index into R[B] at R[B+1], 3=property of R[B] named by constant C. When
// follow is true (plain MAKE_REF) and slot B already holds a RefLocal
// Reference, the result points at that reference's own target instead —
// "ref ref x" flattens to a single indirection. SLOT_MAKE_REF passes
// follow=false so `slot ref` never flattens (§8).
func (vm *VM) makeRef(frame *CallFrame, ins Instruction, follow bool) (Value, error) {
	mode := ins.c()
	switch mode {
	case 0:
		slot := frame.base + int(ins.b())
		if follow {
			for {
				cur := vm.stack[slot]
				if !cur.IsObject() {
					break
				}
				inner, ok := vm.heap.resolve(cur.handle()).(*referenceObj)
				if !ok || inner.kind != RefLocal {
					break
				}
				slot = inner.slot
			}
		}
		r := vm.heap.newReference(RefLocal)
		r.slot = slot
		return objValue(r.hdr().handle), nil
	case 1:
		name := vm.constString(frame.closure.fn.chunk, int(ins.b()))
		r := vm.heap.newReference(RefGlobal)
		r.globalName = name
		return objValue(r.hdr().handle), nil
	case 2:
		container := vm.readRegister(frame.base + int(ins.b()))
		index := vm.readRegister(frame.base + int(ins.b()) + 1)
		r := vm.heap.newReference(RefIndex)
		r.container = container
		r.index = index
		return objValue(r.hdr().handle), nil
	case 3:
		container := vm.readRegister(frame.base + int(ins.b()))
		key := vm.constString(frame.closure.fn.chunk, int(ins.c()))
		r := vm.heap.newReference(RefProperty)
		r.container = container
		r.propKey = key
		return objValue(r.hdr().handle), nil
	default:
		return Value(0), vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "unknown reference addressing mode %d", mode)
	}
}

func (vm *VM) derefGet(refVal Value) (Value, error) {
	if !refVal.IsObject() {
		return Value(0), vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "DEREF_GET operand is not a reference")
	}
	switch r := vm.heap.resolve(refVal.handle()).(type) {
	case *referenceObj:
		switch r.kind {
		case RefLocal:
			return vm.stack[r.slot], nil
		case RefGlobal:
			v, ok := vm.globals[r.globalName]
			if !ok {
				return Value(0), vm.runtimeErrorf(KindRuntime, ErrUndefinedGlobal, "undefined global %q", r.globalName)
			}
			return v, nil
		case RefIndex:
			return vm.indexGet(r.container, r.index)
		case RefProperty:
			return vm.getField(r.container, r.propKey)
		case RefUpvalue:
			return vm.readUpvalue(r.upvalue), nil
		case RefOwned:
			return r.owned, nil
		}
	case *nativeReferenceObj:
		return r.get(r.ctx.userData), nil
	}
	return Value(0), vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "DEREF_GET operand is not a reference")
}

// derefSet writes val through refVal, chasing through an existing
// RefLocal/RefGlobal Reference at the target rather than overwriting it —
// plain DEREF_SET's behavior. derefSetSlot performs the same write but stops
// after exactly one level, which is what SLOT_DEREF_SET needs (§8's "slot
// ref does not flatten").
func (vm *VM) derefSet(refVal, val Value) error { return vm.derefSetDepth(refVal, val, true) }

func (vm *VM) derefSetSlot(refVal, val Value) error { return vm.derefSetDepth(refVal, val, false) }

func (vm *VM) derefSetDepth(refVal, val Value, follow bool) error {
	if !refVal.IsObject() {
		return vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "DEREF_SET operand is not a reference")
	}
	switch r := vm.heap.resolve(refVal.handle()).(type) {
	case *referenceObj:
		switch r.kind {
		case RefLocal:
			if follow {
				if cur := vm.stack[r.slot]; cur.IsObject() {
					if inner, ok := vm.heap.resolve(cur.handle()).(*referenceObj); ok {
						return vm.derefSetDepth(objValue(inner.hdr().handle), val, true)
					}
				}
			}
			vm.stack[r.slot] = val
			return nil
		case RefGlobal:
			if follow {
				return vm.setGlobalFollow(r.globalName, val)
			}
			vm.globals[r.globalName] = val
			return nil
		case RefIndex:
			return vm.indexSet(r.container, r.index, val)
		case RefProperty:
			return vm.setField(r.container, r.propKey, val)
		case RefUpvalue:
			vm.writeUpvalue(r.upvalue, val)
			return nil
		case RefOwned:
			r.owned = val
			return nil
		}
	case *nativeReferenceObj:
		r.set(r.ctx.userData, val)
		return nil
	}
	return vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "DEREF_SET operand is not a reference")
}

func (vm *VM) getField(container Value, key string) (Value, error) {
	if !container.IsObject() {
		return Value(0), vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "cannot read field %q of a %s", key, TypeName(vm.heap, container))
	}
	s, ok := vm.heap.resolve(container.handle()).(*structInstanceObj)
	if !ok {
		return Value(0), vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "cannot read field %q of a %s", key, TypeName(vm.heap, container))
	}
	idx, ok := s.schema.fieldIndex[key]
	if !ok {
		return Value(0), vm.runtimeErrorf(KindRuntime, ErrUndefinedField, "struct %s has no field %q", s.schema.name, key)
	}
	return s.fields[idx], nil
}

func (vm *VM) setField(container Value, key string, val Value) error {
	if !container.IsObject() {
		return vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "cannot set field %q of a %s", key, TypeName(vm.heap, container))
	}
	s, ok := vm.heap.resolve(container.handle()).(*structInstanceObj)
	if !ok {
		return vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "cannot set field %q of a %s", key, TypeName(vm.heap, container))
	}
	idx, ok := s.schema.fieldIndex[key]
	if !ok {
		return vm.runtimeErrorf(KindRuntime, ErrUndefinedField, "struct %s has no field %q", s.schema.name, key)
	}
	s.fields[idx] = val
	return nil
}

func (vm *VM) indexGet(container, index Value) (Value, error) {
	if !container.IsObject() {
		return Value(0), vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "cannot index a %s", TypeName(vm.heap, container))
	}
	switch o := vm.heap.resolve(container.handle()).(type) {
	case *listObj:
		if !index.IsNumber() {
			return Value(0), vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "list index must be a number")
		}
		i := int(index.AsNumber())
		if i < 0 || i >= len(o.elems) {
			return Value(0), vm.runtimeErrorf(KindBound, ErrIndexOutOfRange, "list index %d out of range [0,%d)", i, len(o.elems))
		}
		return o.elems[i], nil
	case *mapObj:
		if !index.IsObject() {
			return Value(0), vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "map key must be a string")
		}
		s, ok := vm.heap.resolve(index.handle()).(*stringObj)
		if !ok {
			return Value(0), vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "map key must be a string")
		}
		v, ok := o.values[s.String()]
		if !ok {
			return Null, nil
		}
		return v, nil
	default:
		return Value(0), vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "cannot index a %s", o.typeName())
	}
}

func (vm *VM) indexSet(container, index, val Value) error {
	if !container.IsObject() {
		return vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "cannot index-assign a %s", TypeName(vm.heap, container))
	}
	switch o := vm.heap.resolve(container.handle()).(type) {
	case *listObj:
		if !index.IsNumber() {
			return vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "list index must be a number")
		}
		i := int(index.AsNumber())
		if i < 0 || i >= len(o.elems) {
			return vm.runtimeErrorf(KindBound, ErrIndexOutOfRange, "list index %d out of range [0,%d)", i, len(o.elems))
		}
		o.elems[i] = val
		return nil
	case *mapObj:
		if !index.IsObject() {
			return vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "map key must be a string")
		}
		s, ok := vm.heap.resolve(index.handle()).(*stringObj)
		if !ok {
			return vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "map key must be a string")
		}
		o.set(s.String(), val)
		return nil
	default:
		return vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "cannot index-assign a %s", o.typeName())
	}
}

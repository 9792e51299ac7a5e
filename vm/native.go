// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

import (
	"fmt"
	"strings"
)

// ParseSignature parses a registration string of the shape
// `name(qual? , qual? , ...)` — e.g. `"Cont.resume(val, val)"` or
// `"List.sort(ref, val)"` — into a name, an arity, and one Qualifier per
// parameter (§4.8, §6). Unlike the teacher's per-arity opcode table, this is
// a small trampoline rather than a generated dispatch array (§9's explicit
// design note against "per-arity dispatcher arrays").
func ParseSignature(sig string) (nativeSignature, error) {
	open := strings.IndexByte(sig, '(')
	close := strings.LastIndexByte(sig, ')')
	if open < 0 || close < 0 || close < open {
		return nativeSignature{}, fmt.Errorf("vm: malformed native signature %q", sig)
	}
	name := sig[:open]
	inner := strings.TrimSpace(sig[open+1 : close])

	var quals []Qualifier
	if inner != "" {
		for _, part := range strings.Split(inner, ",") {
			quals = append(quals, parseQualifier(strings.TrimSpace(part)))
		}
	}
	return nativeSignature{name: name, arity: len(quals), quals: quals}, nil
}

func parseQualifier(tok string) Qualifier {
	fields := strings.Fields(tok)
	qual := "val"
	if len(fields) > 1 {
		qual = fields[0]
	} else if len(fields) == 1 {
		if fields[0] == "ref" || fields[0] == "slot" || fields[0] == "clone" || fields[0] == "typeof" {
			qual = fields[0]
		}
	}
	switch qual {
	case "ref":
		return QualRef
	case "slot":
		return QualSlot
	case "clone":
		return QualClone
	case "typeof":
		return QualTypeof
	default:
		return QualVal
	}
}

// RegisterNative creates a NativeFunction object bound to fn under sig's
// parsed name and installs it as a global of that name (possibly as one
// overload of a Dispatcher, if another arity of the same name is already
// registered — §4.5's arity-selecting dispatchers).
func (vm *VM) RegisterNative(sigStr string, fn nativeFn) error {
	sig, err := ParseSignature(sigStr)
	if err != nil {
		return err
	}
	obj := vm.heap.newNativeFunction(sig, fn)

	existing, ok := vm.globals[sig.name]
	if !ok {
		vm.globals[sig.name] = objValue(obj.hdr().handle)
		return nil
	}
	if existing.IsObject() {
		if d, ok := vm.heap.resolve(existing.handle()).(*dispatcherObj); ok {
			d.byArity[sig.arity] = obj
			return nil
		}
		if prior, ok := vm.heap.resolve(existing.handle()).(*nativeFunctionObj); ok {
			d := vm.heap.newDispatcher(sig.name)
			d.byArity[prior.sig.arity] = prior
			d.byArity[sig.arity] = obj
			vm.globals[sig.name] = objValue(d.hdr().handle)
			return nil
		}
	}
	return fmt.Errorf("vm: cannot register native %q: global already bound to a non-native value", sig.name)
}

// applyQualifiers transforms raw call-site argument values per the callee's
// parameter qualifiers before the Go nativeFn body ever sees them (§4.8):
// ref wraps the argument in a Reference to its call-site slot, clone makes a
// shallow copy of List/Map/StructInstance arguments, typeof substitutes the
// type name string, val passes the value unchanged. slot also passes the
// value unchanged, exactly like val: no binding to the caller's slot is made.
func (vm *VM) applyQualifiers(sig nativeSignature, argBase int, raw []Value) []Value {
	if len(sig.quals) == 0 {
		return raw
	}
	out := make([]Value, len(raw))
	for i, v := range raw {
		if i >= len(sig.quals) {
			out[i] = v
			continue
		}
		switch sig.quals[i] {
		case QualRef:
			r := vm.heap.newReference(RefLocal)
			r.slot = argBase + i
			out[i] = objValue(r.hdr().handle)
		case QualTypeof:
			name := TypeName(vm.heap, v)
			out[i] = objValue(vm.heap.copyString([]byte(name)).hdr().handle)
		case QualClone:
			out[i] = vm.cloneValue(v)
		default: // QualVal, QualSlot (slot has no extra runtime representation without a full compiler-side slot ABI)
			out[i] = v
		}
	}
	return out
}

// cloneValue performs a shallow structural copy of List/Map/StructInstance
// values for the `clone` qualifier; any other value is returned unchanged
// since scalars and immutable objects (String, Function, ...) already have
// value semantics under Ember's == (§4.8).
func (vm *VM) cloneValue(v Value) Value {
	if !v.IsObject() {
		return v
	}
	switch o := vm.heap.resolve(v.handle()).(type) {
	case *listObj:
		l := vm.heap.newListCap(len(o.elems))
		l.elems = append(l.elems, o.elems...)
		return objValue(l.hdr().handle)
	case *mapObj:
		m := vm.heap.newMap()
		for _, k := range o.keys {
			m.set(k, o.values[k])
		}
		return objValue(m.hdr().handle)
	case *structInstanceObj:
		s := vm.heap.newStructInstance(o.schema)
		copy(s.fields, o.fields)
		return objValue(s.hdr().handle)
	default:
		return v
	}
}

// dispatchNative resolves a Dispatcher/NativeFunction/NativeClosure by
// overload arity and calls it with the already-qualifier-processed
// arguments (§4.5's "Dispatchers select an overload by arity"). resultSlot
// is the absolute register this call's result will land in; it is stashed
// on the VM for the duration of the call so a native body that itself calls
// Capture (directly, or via shift/with_prompt) can record it as the
// continuation's return slot.
func (vm *VM) dispatchNative(callee Value, args []Value, resultSlot int) (Value, error) {
	if !callee.IsObject() {
		return Value(0), vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "value is not callable as a native function")
	}
	switch o := vm.heap.resolve(callee.handle()).(type) {
	case *nativeFunctionObj:
		if o.sig.arity != len(args) {
			return Value(0), vm.runtimeErrorf(KindRuntime, ErrArityMismatch, "%s expects %d argument(s), got %d", o.sig.name, o.sig.arity, len(args))
		}
		qualified := vm.applyQualifiers(o.sig, vm.stackTop-len(args), args)
		vm.nativeResultSlot = resultSlot
		return o.fn(vm, qualified), nil
	case *nativeClosureObj:
		if o.fn.sig.arity != len(args) {
			return Value(0), vm.runtimeErrorf(KindRuntime, ErrArityMismatch, "%s expects %d argument(s), got %d", o.fn.sig.name, o.fn.sig.arity, len(args))
		}
		qualified := vm.applyQualifiers(o.fn.sig, vm.stackTop-len(args), args)
		vm.nativeResultSlot = resultSlot
		return o.fn.fn(vm, qualified), nil
	case *dispatcherObj:
		fn, ok := o.byArity[len(args)]
		if !ok {
			return Value(0), vm.runtimeErrorf(KindRuntime, ErrArityMismatch, "%s has no overload for %d argument(s)", o.name, len(args))
		}
		qualified := vm.applyQualifiers(fn.sig, vm.stackTop-len(args), args)
		vm.nativeResultSlot = resultSlot
		return fn.fn(vm, qualified), nil
	default:
		return Value(0), vm.runtimeErrorf(KindRuntime, ErrTypeMismatch, "value of type %s is not callable as a native function", o.typeName())
	}
}

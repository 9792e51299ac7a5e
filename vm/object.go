// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

// typeTag identifies the concrete Go type behind an *object header; the
// header's typeName reads it to name an object's type.
type typeTag uint8

const (
	typeString typeTag = iota
	typeInt64
	typeFunction
	typeNativeFunction
	typeNativeContext
	typeNativeClosure
	typeNativeReference
	typeClosure
	typeUpvalue
	typeList
	typeMap
	typeDispatcher
	typeReference
	typeStructSchema
	typeStructInstance
	typeEnumSchema
	typePromptTag
	typeContinuation
)

var typeTagNames = [...]string{
	typeString: "String", typeInt64: "Int64", typeFunction: "Function",
	typeNativeFunction: "NativeFunction", typeNativeContext: "NativeContext",
	typeNativeClosure: "NativeClosure", typeNativeReference: "NativeReference",
	typeClosure: "Closure", typeUpvalue: "Upvalue", typeList: "List",
	typeMap: "Map", typeDispatcher: "Dispatcher", typeReference: "Reference",
	typeStructSchema: "StructSchema", typeStructInstance: "StructInstance",
	typeEnumSchema: "EnumSchema", typePromptTag: "PromptTag",
	typeContinuation: "Continuation",
}

func (t typeTag) String() string {
	if int(t) < len(typeTagNames) {
		return typeTagNames[t]
	}
	return "Unknown"
}

// header is embedded at the front of every heap allocation, exactly as §3
// specifies: {type_tag, is_marked, next}. next threads the object onto the
// VM-wide all-objects list that the sweep phase walks.
type header struct {
	tag      typeTag
	isMarked bool
	next     object // next link in the VM-wide all-objects list; nil at the tail
	handle   uint32 // this object's slot in Heap.handles, used to decode a NaN-boxed OBJ value back to a pointer
	size     uintptr // bytes attributed to this object in bytesAllocated, for GC pressure accounting
}

// object is the common interface every heap type satisfies so the heap list,
// the gray stack, and the sweep finalizer can operate on them uniformly.
type object interface {
	hdr() *header
	typeName() string
	// blacken pushes every Value/​*object this object directly references
	// onto the collector's gray stack (or marks them, for objects reachable
	// without further recursion).
	blacken(gc *collector)
}

func (h *header) hdr() *header   { return h }
func (h *header) typeName() string { return h.tag.String() }

// ---- String -------------------------------------------------------------

// stringObj is an immutable, interned byte sequence (§3's String).
type stringObj struct {
	header
	bytes    []byte
	hash     uint64
	runeLen  int
}

func (s *stringObj) blacken(*collector) {}

func (s *stringObj) String() string { return string(s.bytes) }

// ---- Int64 (boxed) --------------------------------------------------------

// int64Obj boxes a 64-bit integer on the heap. Ember's register values are
// normally NaN-boxed doubles; a boxed Int64 object exists for values whose
// full 64-bit integer precision must survive a round trip through a double
// (doubles only carry 53 bits of exact integer precision).
type int64Obj struct {
	header
	v int64
}

func (o *int64Obj) blacken(*collector) {}

// ---- Function / Closure ---------------------------------------------------

// qualifierSignature classifies a function's parameter qualifiers (§3) so
// the call path can skip per-call qualifier processing entirely on the
// common case.
type qualifierSignature uint8

const (
	// AllNormalNoRefs: every parameter is plain val-by-default and the
	// function body contains no ref-qualified locals either.
	SigAllNormalNoRefs qualifierSignature = iota
	// AllNormal: every parameter is plain, but the body may still create
	// references to locals explicitly.
	SigAllNormal
	// HasQualifiers: at least one parameter uses ref/slot/clone/typeof.
	SigHasQualifiers
)

// Qualifier is a per-parameter binding mode (§9's "qualifier").
type Qualifier uint8

const (
	QualNone Qualifier = iota
	QualRef
	QualVal
	QualSlot
	QualClone
	QualTypeof
)

// UpvalueDescriptor records, at closure-creation time, whether to capture an
// enclosing function's local slot or one of its own already-captured
// upvalues. Exported so a bytecode builder outside this package (see asm)
// can describe a function's captures without a full compiler.
type UpvalueDescriptor struct {
	FromParentLocal bool
	Index           int
}

// functionObj is the immutable, compiled description of an Ember function
// (§3's Function).
type functionObj struct {
	header
	arity        int
	maxRegs      int
	chunk        *Chunk
	name         string
	moduleName   string
	upvalueDescs []UpvalueDescriptor
	paramQuals   []Qualifier
	qualSig      qualifierSignature
}

func (f *functionObj) blacken(gc *collector) {
	if f.chunk != nil {
		gc.markChunkConstants(f.chunk)
	}
}

// closureObj pairs a Function with the Upvalues it captured (§3's Closure).
type closureObj struct {
	header
	fn       *functionObj
	upvalues []*upvalueObj
}

func (c *closureObj) blacken(gc *collector) {
	gc.markObject(c.fn)
	for _, uv := range c.upvalues {
		gc.markObject(uv)
	}
}

// ---- Upvalue ---------------------------------------------------------

// upvalueState distinguishes the two points in an Upvalue's lifecycle
// described by §3.
type upvalueState uint8

const (
	upvalueOpen upvalueState = iota
	upvalueClosed
)

// upvalueObj is a closure-captured variable. While open, location indexes
// into the VM's relocatable value stack; once closed, the value has been
// copied into closed and location is meaningless (closed is authoritative).
type upvalueObj struct {
	header
	state    upvalueState
	location int // stack index while open
	closed   Value
	nextOpen *upvalueObj // VM-wide open-upvalue list, ordered by descending location
}

func (u *upvalueObj) blacken(gc *collector) {
	if u.state == upvalueClosed {
		gc.markValue(u.closed)
	}
	// While open the value lives on the VM stack itself, which is marked as
	// a root directly; marking it again here would be harmless but redundant.
}

// ---- Native bridge objects -------------------------------------------

// nativeFn is the Go function signature every native dispatcher ultimately
// calls: it receives the already-qualifier-processed argument vector and
// returns a Value, which may be ErrorSentinel() or ControlTransferSentinel().
type nativeFn func(vm *VM, args []Value) Value

// nativeSignature is the parsed form of a registration string of the shape
// `name(qual? param, qual? param, ...)` (§6).
type nativeSignature struct {
	name    string
	arity   int
	quals   []Qualifier
}

// nativeFunctionObj binds a host Go function to a parsed signature (§3's
// NativeFunction / §4.8's "per-arity dispatchers").
type nativeFunctionObj struct {
	header
	sig nativeSignature
	fn  nativeFn
}

func (n *nativeFunctionObj) blacken(*collector) {}

// nativeContextObj carries host-owned user data plus a finalizer the GC
// invokes on sweep (§3's NativeContext).
type nativeContextObj struct {
	header
	userData any
	finalize func(any)
}

func (n *nativeContextObj) blacken(*collector) {}

// nativeClosureObj is a NativeFunction bound to a specific NativeContext
// (§3's NativeClosure), letting the same Go function be reused across many
// host objects (e.g. one per open file handle).
type nativeClosureObj struct {
	header
	fn  *nativeFunctionObj
	ctx *nativeContextObj
}

func (n *nativeClosureObj) blacken(gc *collector) {
	gc.markObject(n.fn)
	gc.markObject(n.ctx)
}

// nativeReferenceObj exposes a single field inside a NativeContext's user
// data as a gettable/settable Ember reference (§3's NativeReference).
type nativeReferenceObj struct {
	header
	ctx *nativeContextObj
	get func(any) Value
	set func(any, Value)
}

func (n *nativeReferenceObj) blacken(gc *collector) { gc.markObject(n.ctx) }

// ---- List / Map --------------------------------------------------------

// listObj is a growable, 0-indexed array (§6's List ops: O(1) amortized
// append, linear shift for insert/remove).
type listObj struct {
	header
	elems []Value
}

func (l *listObj) blacken(gc *collector) {
	for _, v := range l.elems {
		gc.markValue(v)
	}
}

// mapObj is an insertion-ordered string-keyed map. Ordering is kept so that
// ForEach (§6) is reproducible, matching the determinism Property 1 in §8
// demands of everything GC touches.
type mapObj struct {
	header
	keys   []string
	values map[string]Value
}

func newMapObj() *mapObj {
	return &mapObj{values: make(map[string]Value)}
}

func (m *mapObj) blacken(gc *collector) {
	for _, v := range m.values {
		gc.markValue(v)
	}
}

func (m *mapObj) set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *mapObj) delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// ---- Dispatcher --------------------------------------------------------

// dispatcherObj selects among several NativeFunction overloads by arity
// (§4.5's "Dispatchers select an overload by arity").
type dispatcherObj struct {
	header
	name      string
	byArity   map[int]*nativeFunctionObj
}

func (d *dispatcherObj) blacken(gc *collector) {
	for _, fn := range d.byArity {
		gc.markObject(fn)
	}
}

// ---- Reference ---------------------------------------------------------

// refKind distinguishes the five flavors of first-class reference (§3).
type refKind uint8

const (
	RefLocal refKind = iota
	RefGlobal
	RefIndex
	RefProperty
	RefUpvalue
	// RefOwned holds a private copy of a value rather than an address. A
	// capture rewrites a RefLocal pointing below its capture boundary into
	// one of these, since the frame that slot belonged to will not survive
	// the unwind (§4.7).
	RefOwned
)

// referenceObj is a first-class "pointer to a value location" (§3's
// Reference). Exactly one of the kind-specific fields is meaningful,
// selected by kind.
type referenceObj struct {
	header
	kind refKind

	// RefLocal
	slot int
	// RefGlobal
	globalName string
	// RefIndex
	container Value
	index     Value
	// RefProperty
	propKey string
	// RefUpvalue
	upvalue *upvalueObj
	// RefOwned
	owned Value
}

func (r *referenceObj) blacken(gc *collector) {
	switch r.kind {
	case RefIndex:
		gc.markValue(r.container)
		gc.markValue(r.index)
	case RefProperty:
		gc.markValue(r.container)
	case RefUpvalue:
		gc.markObject(r.upvalue)
	case RefOwned:
		gc.markValue(r.owned)
	}
}

// ---- Struct / Enum schemas ----------------------------------------------

// structSchemaObj describes the shape of a struct type (§3).
type structSchemaObj struct {
	header
	name       string
	fieldNames []string
	fieldIndex map[string]int
}

func (s *structSchemaObj) blacken(*collector) {}

// structInstanceObj is a dense array of field values referencing its schema.
type structInstanceObj struct {
	header
	schema *structSchemaObj
	fields []Value
}

func (s *structInstanceObj) blacken(gc *collector) {
	gc.markObject(s.schema)
	for _, v := range s.fields {
		gc.markValue(v)
	}
}

// enumSchemaObj describes an enum type: its name, variant names, and the
// type_id assigned at definition time (monotonically, per VM instance).
type enumSchemaObj struct {
	header
	name         string
	variantNames []string
	typeID       uint16
}

func (e *enumSchemaObj) blacken(*collector) {}

// ---- PromptTag / Continuation --------------------------------------------

// promptTagObj identifies a delimited-control prompt. Identity is by id, not
// address (§3) — two PromptTag objects with the same id are the same prompt
// for matching purposes, which matters once a tag value has been captured
// inside a resumed continuation and reconstructed as a distinct object.
type promptTagObj struct {
	header
	id   uint32
	name string
}

func (p *promptTagObj) blacken(*collector) {}

// continuationState tracks §4.7's three-state lifecycle.
type continuationState uint8

const (
	ContinuationValid continuationState = iota
	ContinuationConsumed
	ContinuationInvalid
)

// continuationObj is a first-class suspended computation (§3). It owns a
// private copy of the frames and stack slice it captured; resuming it splices
// that copy back onto the live VM stack.
type continuationObj struct {
	header
	frames      []savedFrame
	stack       []Value
	stackBase   int // csb at capture time, for offset-correcting resumed frame bases
	savedIP     int
	savedChunk  *Chunk
	promptTag   *promptTagObj
	state       continuationState
	returnSlot  int // offset-corrected relative to stackBase
}

// savedFrame is the frozen form of a CallFrame inside a captured
// Continuation — it cannot reference the live stack, so it keeps its own
// stack-relative base.
type savedFrame struct {
	closure      *closureObj
	ip           int
	base         int // relative to the continuation's own captured stack slice
	resultSlot   int
	callerChunk  *Chunk
	callerIP     int
}

func (c *continuationObj) blacken(gc *collector) {
	for _, f := range c.frames {
		gc.markObject(f.closure)
	}
	for _, v := range c.stack {
		gc.markValue(v)
	}
	if c.promptTag != nil {
		gc.markObject(c.promptTag)
	}
}

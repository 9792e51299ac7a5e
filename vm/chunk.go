// Copyright 2026 The Ember Authors
// This file is part of Ember.

package vm

import (
	"encoding/binary"
	"fmt"
)

// Chunk is a compiled unit of bytecode: its instruction stream, constant
// pool, and an optional line table for error reporting (§4.4, §6).
type Chunk struct {
	Name         string
	Code         []Instruction
	Constants    []Value
	ConstStrings []string // backing bytes for any Constants entry that is a String object, parallel by constant index (empty string if not a string constant)
	Lines        []int32  // Lines[ip] is the source line for Code[ip]; may be nil if line info was stripped
}

// LineFor returns the source line attributed to instruction ip, or 0 if no
// line table is present or ip is out of range.
func (c *Chunk) LineFor(ip int) int {
	if c.Lines == nil || ip < 0 || ip >= len(c.Lines) {
		return 0
	}
	return int(c.Lines[ip])
}

const chunkMagic uint32 = 0x454d4252 // "EMBR"
const chunkVersion uint16 = 1

// constKind tags a serialized constant pool entry.
type constKind uint8

const (
	constNumber constKind = iota
	constString
	constBool
	constNull
)

// Encode serializes the chunk to the stable binary format §6 requires for a
// round trip (§8 Property 5): a small header, then instructions as
// little-endian u32 words, then a typed constant pool, then an optional line
// table.
func (c *Chunk) Encode() []byte {
	var buf []byte
	put32 := func(v uint32) { buf = binary.LittleEndian.AppendUint32(buf, v) }
	put16 := func(v uint16) { buf = binary.LittleEndian.AppendUint16(buf, v) }
	put64 := func(v uint64) { buf = binary.LittleEndian.AppendUint64(buf, v) }
	putStr := func(s string) { put32(uint32(len(s))); buf = append(buf, s...) }

	put32(chunkMagic)
	put16(chunkVersion)
	putStr(c.Name)

	put32(uint32(len(c.Code)))
	for _, ins := range c.Code {
		put32(uint32(ins))
	}

	put32(uint32(len(c.Constants)))
	for i, v := range c.Constants {
		switch {
		case v.IsNull():
			buf = append(buf, byte(constNull))
		case v.IsBool():
			buf = append(buf, byte(constBool))
			if v.AsBool() {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case v.IsNumber():
			buf = append(buf, byte(constNumber))
			put64(uint64(v))
		default:
			buf = append(buf, byte(constString))
			s := ""
			if i < len(c.ConstStrings) {
				s = c.ConstStrings[i]
			}
			putStr(s)
		}
	}

	if c.Lines == nil {
		put32(0)
	} else {
		put32(uint32(len(c.Lines)))
		for _, l := range c.Lines {
			put32(uint32(l))
		}
	}
	return buf
}

// DecodeChunk reverses Encode. It allocates fresh String objects for string
// constants directly off the given heap, interning them exactly as the
// runtime would if it had compiled them itself.
func DecodeChunk(h *Heap, data []byte) (*Chunk, error) {
	r := &byteReader{data: data}

	magic, err := r.u32()
	if err != nil || magic != chunkMagic {
		return nil, fmt.Errorf("vm: not an Ember chunk (bad magic)")
	}
	if _, err := r.u16(); err != nil {
		return nil, fmt.Errorf("vm: truncated chunk header: %w", err)
	}
	name, err := r.str()
	if err != nil {
		return nil, fmt.Errorf("vm: truncated chunk name: %w", err)
	}

	c := &Chunk{Name: name}

	n, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("vm: truncated instruction count: %w", err)
	}
	c.Code = make([]Instruction, n)
	for i := range c.Code {
		w, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("vm: truncated instruction stream: %w", err)
		}
		c.Code[i] = Instruction(w)
	}

	nc, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("vm: truncated constant count: %w", err)
	}
	c.Constants = make([]Value, nc)
	c.ConstStrings = make([]string, nc)
	for i := range c.Constants {
		kind, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("vm: truncated constant tag: %w", err)
		}
		switch constKind(kind) {
		case constNull:
			c.Constants[i] = Null
		case constBool:
			b, err := r.u8()
			if err != nil {
				return nil, err
			}
			c.Constants[i] = Bool(b != 0)
		case constNumber:
			bits, err := r.u64()
			if err != nil {
				return nil, err
			}
			c.Constants[i] = Value(bits)
		case constString:
			s, err := r.str()
			if err != nil {
				return nil, fmt.Errorf("vm: truncated string constant: %w", err)
			}
			obj := h.copyString([]byte(s))
			c.Constants[i] = objValue(obj.hdr().handle)
			c.ConstStrings[i] = s
		default:
			return nil, fmt.Errorf("vm: unknown constant tag %d", kind)
		}
	}

	nl, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("vm: truncated line table count: %w", err)
	}
	if nl > 0 {
		c.Lines = make([]int32, nl)
		for i := range c.Lines {
			v, err := r.u32()
			if err != nil {
				return nil, fmt.Errorf("vm: truncated line table: %w", err)
			}
			c.Lines[i] = int32(v)
		}
	}

	return c, nil
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) u8() (uint8, error) {
	if r.pos+1 > len(r.data) {
		return 0, fmt.Errorf("vm: unexpected end of chunk data")
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *byteReader) u16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("vm: unexpected end of chunk data")
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *byteReader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("vm: unexpected end of chunk data")
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) u64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("vm: unexpected end of chunk data")
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *byteReader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.data) {
		return "", fmt.Errorf("vm: unexpected end of chunk data")
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

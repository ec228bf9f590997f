package wasmtest

import (
	"bytes"

	"github.com/tetratelabs/wazero/api"
)

var (
	I32 = []api.ValueType{api.ValueTypeI32}
	I64 = []api.ValueType{api.ValueTypeI64}
)

// Types concatenates value type lists, e.g. Types(I32, I32, I64).
func Types(lists ...[]api.ValueType) []api.ValueType {
	return bytes.Join(lists, nil)
}

// LocalGet encodes local.get idx.
func LocalGet(idx uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(0x20)
	writeU32(&b, idx)
	return b.Bytes()
}

// I32Const encodes i32.const v.
func I32Const(v int32) []byte {
	return appendS64([]byte{0x41}, int64(v))
}

// I64Const encodes i64.const v.
func I64Const(v int64) []byte {
	return appendS64([]byte{0x42}, v)
}

// Call encodes call idx.
func Call(idx uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(0x10)
	writeU32(&b, idx)
	return b.Bytes()
}

// Drop encodes drop.
func Drop() []byte { return []byte{0x1a} }

// I32Add encodes i32.add.
func I32Add() []byte { return []byte{0x6a} }

// Unreachable encodes unreachable.
func Unreachable() []byte { return []byte{0x00} }

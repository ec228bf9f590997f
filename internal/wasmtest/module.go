// Package wasmtest encodes small core WebAssembly modules for tests.
//
// It covers the handful of sections guest fixtures need: types, function
// imports, functions, one memory, exports, code and active data segments.
package wasmtest

import (
	"bytes"

	"github.com/tetratelabs/wazero/api"
)

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	kindFunc   = 0x00
	kindMemory = 0x02
)

type funcType struct {
	params  []api.ValueType
	results []api.ValueType
}

type importFunc struct {
	module string
	name   string
	typ    uint32
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type dataSegment struct {
	data   []byte
	offset uint32
}

// Module accumulates definitions. Imports must be declared before any
// function body because they occupy the low function indices.
type Module struct {
	types    []funcType
	imports  []importFunc
	funcs    []uint32
	bodies   [][]byte
	exports  []export
	data     []dataSegment
	mems     []uint32
}

// New returns an empty module.
func New() *Module {
	return &Module{}
}

func (m *Module) typeIndex(params, results []api.ValueType) uint32 {
	for i, t := range m.types {
		if bytes.Equal(t.params, params) && bytes.Equal(t.results, results) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

// Import declares a function import and returns its function index.
func (m *Module) Import(module, name string, params, results []api.ValueType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: imports must be declared before functions")
	}
	m.imports = append(m.imports, importFunc{module: module, name: name, typ: m.typeIndex(params, results)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function whose body is code (without the trailing end)
// and returns its function index.
func (m *Module) Func(params, results []api.ValueType, code ...[]byte) uint32 {
	m.funcs = append(m.funcs, m.typeIndex(params, results))
	m.bodies = append(m.bodies, bytes.Join(code, nil))
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// ExportFunc exports function idx under name.
func (m *Module) ExportFunc(name string, idx uint32) *Module {
	m.exports = append(m.exports, export{name: name, kind: kindFunc, idx: idx})
	return m
}

// Memory declares a memory with the given minimum page count. The first
// call declares memory 0 and exports it as "memory"; later calls add
// further memories, which only a multi-memory engine accepts.
func (m *Module) Memory(pages uint32) *Module {
	m.mems = append(m.mems, pages)
	if len(m.mems) == 1 {
		m.exports = append(m.exports, export{name: "memory", kind: kindMemory, idx: 0})
	}
	return m
}

// Data places data at offset in memory 0.
func (m *Module) Data(offset uint32, data []byte) *Module {
	m.data = append(m.data, dataSegment{offset: offset, data: data})
	return m
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	if len(m.types) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.types)))
		for _, t := range m.types {
			sec.WriteByte(0x60)
			writeU32(&sec, uint32(len(t.params)))
			sec.Write(t.params)
			writeU32(&sec, uint32(len(t.results)))
			sec.Write(t.results)
		}
		writeSection(&out, sectionType, sec.Bytes())
	}

	if len(m.imports) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.imports)))
		for _, imp := range m.imports {
			writeName(&sec, imp.module)
			writeName(&sec, imp.name)
			sec.WriteByte(kindFunc)
			writeU32(&sec, imp.typ)
		}
		writeSection(&out, sectionImport, sec.Bytes())
	}

	if len(m.funcs) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.funcs)))
		for _, idx := range m.funcs {
			writeU32(&sec, idx)
		}
		writeSection(&out, sectionFunction, sec.Bytes())
	}

	if len(m.mems) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.mems)))
		for _, pages := range m.mems {
			sec.WriteByte(0x00)
			writeU32(&sec, pages)
		}
		writeSection(&out, sectionMemory, sec.Bytes())
	}

	if len(m.exports) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.exports)))
		for _, e := range m.exports {
			writeName(&sec, e.name)
			sec.WriteByte(e.kind)
			writeU32(&sec, e.idx)
		}
		writeSection(&out, sectionExport, sec.Bytes())
	}

	if len(m.bodies) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.bodies)))
		for _, body := range m.bodies {
			var fn bytes.Buffer
			writeU32(&fn, 0) // no local declarations
			fn.Write(body)
			fn.WriteByte(0x0b)
			writeU32(&sec, uint32(fn.Len()))
			sec.Write(fn.Bytes())
		}
		writeSection(&out, sectionCode, sec.Bytes())
	}

	if len(m.data) > 0 {
		var sec bytes.Buffer
		writeU32(&sec, uint32(len(m.data)))
		for _, d := range m.data {
			sec.WriteByte(0x00)
			sec.Write(I32Const(int32(d.offset)))
			sec.WriteByte(0x0b)
			writeU32(&sec, uint32(len(d.data)))
			sec.Write(d.data)
		}
		writeSection(&out, sectionData, sec.Bytes())
	}

	return out.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, body []byte) {
	w.WriteByte(id)
	writeU32(w, uint32(len(body)))
	w.Write(body)
}

func writeName(w *bytes.Buffer, s string) {
	writeU32(w, uint32(len(s)))
	w.WriteString(s)
}

func writeU32(w *bytes.Buffer, v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.WriteByte(b)
		if v == 0 {
			return
		}
	}
}

func appendS64(dst []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		dst = append(dst, b)
		if done {
			return dst
		}
	}
}

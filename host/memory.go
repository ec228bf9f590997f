package host

import (
	"github.com/tetratelabs/wazero/api"
)

// Status codes returned to guests as i32. Functions that return a length
// use non-negative values for success and these codes for failure.
const (
	StatusOK       int32 = 0
	StatusNotFound int32 = -1
	StatusInvalid  int32 = -2
	StatusTooSmall int32 = -3
	StatusFailed   int32 = -4
)

// I32 encodes v for a result slot.
func I32(v int32) uint64 {
	return api.EncodeI32(v)
}

// U32 decodes an i32 parameter as unsigned.
func U32(v uint64) uint32 {
	return api.DecodeU32(v)
}

// ReadBytes copies length bytes at ptr out of the guest's memory.
func ReadBytes(mod api.Module, ptr, length uint32) ([]byte, bool) {
	mem := mod.Memory()
	if mem == nil {
		return nil, false
	}
	buf, ok := mem.Read(ptr, length)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, true
}

// ReadString reads a UTF-8 string of length bytes at ptr.
func ReadString(mod api.Module, ptr, length uint32) (string, bool) {
	mem := mod.Memory()
	if mem == nil {
		return "", false
	}
	buf, ok := mem.Read(ptr, length)
	if !ok {
		return "", false
	}
	return string(buf), true
}

// WriteBytes writes data into the guest buffer [ptr, ptr+capacity). It
// returns len(data) on success, StatusTooSmall when the buffer is too small
// and StatusInvalid when the buffer lies outside memory.
func WriteBytes(mod api.Module, ptr, capacity uint32, data []byte) int32 {
	if uint64(len(data)) > uint64(capacity) {
		return StatusTooSmall
	}
	mem := mod.Memory()
	if mem == nil || !mem.Write(ptr, data) {
		return StatusInvalid
	}
	return int32(len(data))
}

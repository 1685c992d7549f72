// this code is based on https://github.com/brunocalza/go-bustub

package types

import (
	"bytes"
	"encoding/binary"
)

type UInt32 uint32
type Int32 int32

// Serialize casts it to []byte
func (v UInt32) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func NewUInt32FromBytes(data []byte) (ret_ UInt32) {
	var ret UInt32
	binary.Read(bytes.NewBuffer(data), binary.LittleEndian, &ret)
	return ret
}

// Serialize casts it to []byte
func (v Int32) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func NewInt32FromBytes(data []byte) (ret_ Int32) {
	var ret Int32
	binary.Read(bytes.NewBuffer(data), binary.LittleEndian, &ret)
	return ret
}

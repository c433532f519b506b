package recorder

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
)

// Record layout, little endian:
//
//	0  magic "EVT2"     24 seq
//	4  record version   32 ts event
//	6  header size      40 ts recv
//	8  family           48 payload
//	9  source venue     .. crc32c(header+payload)
//	10 kind
//	12 schema version
//	14 flags
//	16 payload length
//	20 reserved
const (
	recordVersion      uint16 = 2
	recordHeaderSize          = 48
	recordChecksumSize        = 4
)

var (
	recordMagic = [4]byte{'E', 'V', 'T', '2'}
	crcTable    = crc32.MakeTable(crc32.Castagnoli)
)

var (
	ErrInvalidMagic            = errors.New("recorder: invalid magic")
	ErrUnsupportedRecordVer    = errors.New("recorder: unsupported record version")
	ErrInvalidRecordHeaderSize = errors.New("recorder: invalid header size")
	ErrChecksumMismatch        = errors.New("recorder: checksum mismatch")
	ErrPayloadTooLarge         = errors.New("recorder: payload too large")
)

func encodeHeader(dst []byte, h schema.EventHeader, payloadLen int) {
	_ = dst[recordHeaderSize-1]
	copy(dst[0:4], recordMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], recordVersion)
	binary.LittleEndian.PutUint16(dst[6:8], recordHeaderSize)
	dst[8] = byte(h.Family)
	dst[9] = byte(h.Source)
	binary.LittleEndian.PutUint16(dst[10:12], uint16(h.Kind))
	binary.LittleEndian.PutUint16(dst[12:14], h.Version)
	binary.LittleEndian.PutUint16(dst[14:16], h.Flags)
	binary.LittleEndian.PutUint32(dst[16:20], uint32(payloadLen))
	binary.LittleEndian.PutUint32(dst[20:24], 0)
	binary.LittleEndian.PutUint64(dst[24:32], h.Seq)
	binary.LittleEndian.PutUint64(dst[32:40], uint64(h.TsEvent))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(h.TsRecv))
}

func checksum(header []byte, payload []byte) uint32 {
	crc := crc32.Update(0, crcTable, header)
	return crc32.Update(crc, crcTable, payload)
}

func decodeRecordHeader(src []byte) (schema.EventHeader, uint32, error) {
	if len(src) < recordHeaderSize {
		return schema.EventHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	if !bytes.Equal(src[0:4], recordMagic[:]) {
		return schema.EventHeader{}, 0, ErrInvalidMagic
	}
	if ver := binary.LittleEndian.Uint16(src[4:6]); ver != recordVersion {
		return schema.EventHeader{}, 0, errors.Wrapf(ErrUnsupportedRecordVer, "version %d", ver)
	}
	if size := binary.LittleEndian.Uint16(src[6:8]); size != recordHeaderSize {
		return schema.EventHeader{}, 0, ErrInvalidRecordHeaderSize
	}
	h := schema.EventHeader{
		Family:  schema.Family(src[8]),
		Source:  schema.VenueID(src[9]),
		Kind:    schema.Kind(binary.LittleEndian.Uint16(src[10:12])),
		Version: binary.LittleEndian.Uint16(src[12:14]),
		Flags:   binary.LittleEndian.Uint16(src[14:16]),
		Seq:     binary.LittleEndian.Uint64(src[24:32]),
		TsEvent: schema.Timeval(int64(binary.LittleEndian.Uint64(src[32:40]))),
		TsRecv:  schema.Timeval(int64(binary.LittleEndian.Uint64(src[40:48]))),
	}
	return h, binary.LittleEndian.Uint32(src[16:20]), nil
}

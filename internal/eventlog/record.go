package eventlog

import (
	"encoding/binary"
	"hash/crc32"
)

// Record encoding: mug_be4 | job | crc32c(mug_be4|job)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeRecord(mug uint32, job []byte) []byte {
	out := make([]byte, 0, 4+len(job)+4)
	out = binary.BigEndian.AppendUint32(out, mug)
	out = append(out, job...)
	crc := crc32.Checksum(out, castagnoli)
	return binary.BigEndian.AppendUint32(out, crc)
}

func decodeRecord(b []byte) (mug uint32, job []byte, ok bool) {
	if len(b) < 4+4 {
		return 0, nil, false
	}
	body := b[:len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Checksum(body, castagnoli) != expect {
		return 0, nil, false
	}
	return binary.BigEndian.Uint32(body[:4]), append([]byte(nil), body[4:]...), true
}

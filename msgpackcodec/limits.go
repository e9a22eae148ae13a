package msgpackcodec

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/Zereker/seal"
)

// checkLengths walks the msgpack structure of body without decoding it and
// rejects any str, bin, ext, array or map header that declares more than the
// bytes left in the body. The decoder sizes containers from those headers, so
// this keeps a tiny frame from allocating a huge map or slice.
func checkLengths(body []byte) error {
	p := body
	pending := uint64(1)

	for pending > 0 {
		if len(p) == 0 {
			return errors.Wrap(seal.ErrMalformedMessage, "truncated message")
		}
		pending--

		b := p[0]
		p = p[1:]

		var items, skip uint64
		switch {
		case b <= 0x7f, b >= 0xe0, b == 0xc0, b == 0xc2, b == 0xc3:
		case b >= 0x80 && b <= 0x8f:
			items = 2 * uint64(b&0x0f)
		case b >= 0x90 && b <= 0x9f:
			items = uint64(b & 0x0f)
		case b >= 0xa0 && b <= 0xbf:
			skip = uint64(b & 0x1f)
		default:
			var err error
			p, items, skip, err = readHeader(b, p)
			if err != nil {
				return err
			}
		}

		remaining := uint64(len(p))
		if skip > remaining || items > remaining {
			return errors.Wrapf(seal.ErrMalformedMessage,
				"header 0x%02x declares %d items, %d bytes, %d bytes left", b, items, skip, remaining)
		}
		p = p[skip:]
		pending += items
	}

	return nil
}

// readHeader consumes the length field of the multi-byte formats and returns
// the number of nested items and raw bytes that follow it.
func readHeader(b byte, p []byte) (rest []byte, items, skip uint64, err error) {
	size := func(n int) (uint64, bool) {
		if len(p) < n {
			return 0, false
		}
		var v uint64
		switch n {
		case 1:
			v = uint64(p[0])
		case 2:
			v = uint64(binary.BigEndian.Uint16(p))
		case 4:
			v = uint64(binary.BigEndian.Uint32(p))
		}
		p = p[n:]
		return v, true
	}

	var ok bool
	switch b {
	case 0xc4, 0xd9: // bin8, str8
		skip, ok = size(1)
	case 0xc5, 0xda: // bin16, str16
		skip, ok = size(2)
	case 0xc6, 0xdb: // bin32, str32
		skip, ok = size(4)
	case 0xc7: // ext8
		skip, ok = size(1)
		skip++
	case 0xc8: // ext16
		skip, ok = size(2)
		skip++
	case 0xc9: // ext32
		skip, ok = size(4)
		skip++
	case 0xca, 0xce, 0xd2: // float32, uint32, int32
		skip, ok = 4, true
	case 0xcb, 0xcf, 0xd3: // float64, uint64, int64
		skip, ok = 8, true
	case 0xcc, 0xd0: // uint8, int8
		skip, ok = 1, true
	case 0xcd, 0xd1: // uint16, int16
		skip, ok = 2, true
	case 0xd4, 0xd5, 0xd6, 0xd7, 0xd8: // fixext 1, 2, 4, 8, 16
		skip, ok = 1+(uint64(1)<<(b-0xd4)), true
	case 0xdc: // array16
		items, ok = size(2)
	case 0xdd: // array32
		items, ok = size(4)
	case 0xde: // map16
		items, ok = size(2)
		items *= 2
	case 0xdf: // map32
		items, ok = size(4)
		items *= 2
	default: // 0xc1 is never used
		return nil, 0, 0, errors.Wrapf(seal.ErrMalformedMessage, "invalid type 0x%02x", b)
	}

	if !ok {
		return nil, 0, 0, errors.Wrap(seal.ErrMalformedMessage, "truncated header")
	}
	return p, items, skip, nil
}

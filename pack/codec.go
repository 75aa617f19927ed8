package pack

import (
	"fmt"
	"time"

	"pgbr/errkit"
	"pgbr/stringid"
)

// Encode serializes the Pack to its wire form: a sequence of
// type-tag | field-id | value entries, field-id and length prefixes encoded
// as varint128 (signed integer values are zigzag-encoded first).
func (p *Pack) Encode() []byte {
	var out []byte
	for _, f := range p.fields {
		out = append(out, byte(f.Type))
		out = stringid.EncodeVarint128(out, uint64(f.Id))
		out = encodeValue(out, f)
	}
	return out
}

func encodeValue(out []byte, f Field) []byte {
	switch f.Type {
	case TypeBool:
		if f.boolVal {
			return append(out, 1)
		}
		return append(out, 0)
	case TypeI32, TypeI64:
		return stringid.EncodeVarint128(out, stringid.ToZigZag64(f.intVal))
	case TypeU32, TypeU64:
		return stringid.EncodeVarint128(out, f.uintVal)
	case TypeTime:
		return stringid.EncodeVarint128(out, stringid.ToZigZag64(f.timeVal.UnixNano()))
	case TypeBin:
		out = stringid.EncodeVarint128(out, uint64(len(f.binVal)))
		return append(out, f.binVal...)
	case TypeStr:
		out = stringid.EncodeVarint128(out, uint64(len(f.strVal)))
		return append(out, f.strVal...)
	case TypeObj:
		body := f.objVal.Encode()
		out = stringid.EncodeVarint128(out, uint64(len(body)))
		return append(out, body...)
	case TypeArray:
		out = stringid.EncodeVarint128(out, uint64(len(f.arrayVal)))
		for _, elem := range f.arrayVal {
			body := elem.Encode()
			out = stringid.EncodeVarint128(out, uint64(len(body)))
			out = append(out, body...)
		}
		return out
	case TypePtr:
		return out
	default:
		panic(fmt.Sprintf("pack: encode: unhandled type %v", f.Type))
	}
}

// Decode parses a Pack from its wire form. Malformed input (an unknown type
// tag, a truncated varint, or a length prefix that runs past the end of
// buf) raises a FormatError, matching the rest of the codec's error
// taxonomy.
func Decode(buf []byte) (*Pack, *errkit.Error) {
	p := New()
	pos := 0
	for pos < len(buf) {
		if pos >= len(buf) {
			return nil, errkit.New(errkit.KindFormat, "pack: truncated at offset %d", pos)
		}
		typ := Type(buf[pos])
		pos++

		rawId, n := stringid.DecodeVarint128(buf[pos:])
		if n == 0 {
			return nil, errkit.New(errkit.KindFormat, "pack: truncated field id at offset %d", pos)
		}
		pos += n
		id := uint32(rawId)

		val, consumed, err := decodeValue(typ, buf[pos:])
		if err != nil {
			return nil, err
		}
		pos += consumed
		val.Id = id
		p.fields = append(p.fields, val)
	}
	return p, nil
}

func decodeValue(typ Type, buf []byte) (Field, int, *errkit.Error) {
	switch typ {
	case TypeBool:
		if len(buf) < 1 {
			return Field{}, 0, errkit.New(errkit.KindFormat, "pack: truncated bool value")
		}
		return Field{Type: TypeBool, boolVal: buf[0] != 0}, 1, nil
	case TypeI32, TypeI64:
		raw, n := stringid.DecodeVarint128(buf)
		if n == 0 {
			return Field{}, 0, errkit.New(errkit.KindFormat, "pack: truncated int value")
		}
		return Field{Type: typ, intVal: stringid.FromZigZag64(raw)}, n, nil
	case TypeU32, TypeU64:
		raw, n := stringid.DecodeVarint128(buf)
		if n == 0 {
			return Field{}, 0, errkit.New(errkit.KindFormat, "pack: truncated uint value")
		}
		return Field{Type: typ, uintVal: raw}, n, nil
	case TypeTime:
		raw, n := stringid.DecodeVarint128(buf)
		if n == 0 {
			return Field{}, 0, errkit.New(errkit.KindFormat, "pack: truncated time value")
		}
		return Field{Type: TypeTime, timeVal: time.Unix(0, stringid.FromZigZag64(raw)).UTC()}, n, nil
	case TypeBin:
		ln, n, err := decodeLen(buf)
		if err != nil {
			return Field{}, 0, err
		}
		if n+ln > len(buf) {
			return Field{}, 0, errkit.New(errkit.KindFormat, "pack: bin length %d exceeds remaining buffer", ln)
		}
		data := make([]byte, ln)
		copy(data, buf[n:n+ln])
		return Field{Type: TypeBin, binVal: data}, n + ln, nil
	case TypeStr:
		ln, n, err := decodeLen(buf)
		if err != nil {
			return Field{}, 0, err
		}
		if n+ln > len(buf) {
			return Field{}, 0, errkit.New(errkit.KindFormat, "pack: str length %d exceeds remaining buffer", ln)
		}
		return Field{Type: TypeStr, strVal: string(buf[n : n+ln])}, n + ln, nil
	case TypeObj:
		ln, n, err := decodeLen(buf)
		if err != nil {
			return Field{}, 0, err
		}
		if n+ln > len(buf) {
			return Field{}, 0, errkit.New(errkit.KindFormat, "pack: obj length %d exceeds remaining buffer", ln)
		}
		sub, derr := Decode(buf[n : n+ln])
		if derr != nil {
			return Field{}, 0, derr
		}
		return Field{Type: TypeObj, objVal: sub}, n + ln, nil
	case TypeArray:
		count, n, err := decodeLen(buf)
		if err != nil {
			return Field{}, 0, err
		}
		pos := n
		elems := make([]*Pack, 0, count)
		for i := 0; i < count; i++ {
			ln, m, err := decodeLen(buf[pos:])
			if err != nil {
				return Field{}, 0, err
			}
			pos += m
			if pos+ln > len(buf) {
				return Field{}, 0, errkit.New(errkit.KindFormat, "pack: array element length %d exceeds remaining buffer", ln)
			}
			elem, derr := Decode(buf[pos : pos+ln])
			if derr != nil {
				return Field{}, 0, derr
			}
			elems = append(elems, elem)
			pos += ln
		}
		return Field{Type: TypeArray, arrayVal: elems}, pos, nil
	case TypePtr:
		return Field{Type: TypePtr}, 0, nil
	default:
		return Field{}, 0, errkit.New(errkit.KindFormat, "pack: unknown type tag 0x%02x", byte(typ))
	}
}

func decodeLen(buf []byte) (int, int, *errkit.Error) {
	raw, n := stringid.DecodeVarint128(buf)
	if n == 0 {
		return 0, 0, errkit.New(errkit.KindFormat, "pack: truncated length prefix")
	}
	return int(raw), n, nil
}

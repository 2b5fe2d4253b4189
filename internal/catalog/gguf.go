package catalog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// GGUF metadata value types.
const (
	ggufUint8 = iota
	ggufInt8
	ggufUint16
	ggufInt16
	ggufUint32
	ggufInt32
	ggufFloat32
	ggufBool
	ggufString
	ggufArray
	ggufUint64
	ggufInt64
	ggufFloat64
)

const (
	ggufMagic = "GGUF"
	// Caps on untrusted length fields so a corrupt header cannot make us
	// allocate or loop unreasonably.
	maxKVCount   = 1 << 16
	maxStringLen = 1 << 20
)

// readLayerCount extracts the transformer block count from a GGUF file
// header: the value of "<arch>.block_count" where arch is the value of
// "general.architecture". Returns 0 when the header does not carry it.
func readLayerCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return parseGGUFLayerCount(bufio.NewReaderSize(f, 1<<16))
}

func parseGGUFLayerCount(r io.Reader) (int, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return 0, err
	}
	if string(magic[:]) != ggufMagic {
		return 0, fmt.Errorf("not a gguf file")
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, err
	}
	if version < 2 {
		return 0, fmt.Errorf("unsupported gguf version %d", version)
	}
	var tensorCount, kvCount uint64
	if err := binary.Read(r, binary.LittleEndian, &tensorCount); err != nil {
		return 0, err
	}
	if err := binary.Read(r, binary.LittleEndian, &kvCount); err != nil {
		return 0, err
	}
	if kvCount > maxKVCount {
		return 0, fmt.Errorf("implausible kv count %d", kvCount)
	}

	// Key order is unspecified, so remember every *.block_count until the
	// architecture is known.
	arch := ""
	counts := map[string]uint64{}
	for i := uint64(0); i < kvCount; i++ {
		key, err := readGGUFString(r)
		if err != nil {
			return 0, err
		}
		var typ uint32
		if err := binary.Read(r, binary.LittleEndian, &typ); err != nil {
			return 0, err
		}
		switch {
		case key == "general.architecture" && typ == ggufString:
			if arch, err = readGGUFString(r); err != nil {
				return 0, err
			}
		case strings.HasSuffix(key, ".block_count"):
			v, err := readGGUFUint(r, typ)
			if err != nil {
				return 0, err
			}
			counts[strings.TrimSuffix(key, ".block_count")] = v
		default:
			if err := skipGGUFValue(r, typ); err != nil {
				return 0, err
			}
		}
		if arch != "" {
			if n, ok := counts[arch]; ok {
				return int(n), nil
			}
		}
	}
	return 0, nil
}

func readGGUFString(r io.Reader) (string, error) {
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", fmt.Errorf("implausible string length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readGGUFUint reads any integer-typed value as uint64.
func readGGUFUint(r io.Reader, typ uint32) (uint64, error) {
	switch typ {
	case ggufUint8, ggufInt8:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), err
	case ggufUint16, ggufInt16:
		var v uint16
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), err
	case ggufUint32, ggufInt32:
		var v uint32
		err := binary.Read(r, binary.LittleEndian, &v)
		return uint64(v), err
	case ggufUint64, ggufInt64:
		var v uint64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, err
	default:
		return 0, fmt.Errorf("block_count has non-integer type %d", typ)
	}
}

// scalarSize returns the byte width of fixed-size value types, 0 otherwise.
func scalarSize(typ uint32) int64 {
	switch typ {
	case ggufUint8, ggufInt8, ggufBool:
		return 1
	case ggufUint16, ggufInt16:
		return 2
	case ggufUint32, ggufInt32, ggufFloat32:
		return 4
	case ggufUint64, ggufInt64, ggufFloat64:
		return 8
	default:
		return 0
	}
}

func skipGGUFValue(r io.Reader, typ uint32) error {
	if n := scalarSize(typ); n > 0 {
		return skipN(r, n)
	}
	switch typ {
	case ggufString:
		var n uint64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return err
		}
		if n > 1<<32 {
			return fmt.Errorf("implausible string length %d", n)
		}
		return skipN(r, int64(n))
	case ggufArray:
		var elemType uint32
		if err := binary.Read(r, binary.LittleEndian, &elemType); err != nil {
			return err
		}
		var count uint64
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return err
		}
		if count > 1<<28 {
			return fmt.Errorf("implausible array length %d", count)
		}
		if n := scalarSize(elemType); n > 0 {
			return skipN(r, n*int64(count))
		}
		for j := uint64(0); j < count; j++ {
			if err := skipGGUFValue(r, elemType); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown gguf value type %d", typ)
	}
}

func skipN(r io.Reader, n int64) error {
	_, err := io.CopyN(io.Discard, r, n)
	return err
}

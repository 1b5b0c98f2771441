package rawio

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/huangsam/spikewave/internal/contract"
	"github.com/sbinet/npyio"
)

// LoadInt64 reads any integer .npy array (1-D or N×1) as int64.
func LoadInt64(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", contract.ErrMissingInput, path)
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r, err := npyio.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("parse npy header %s: %w", path, err)
	}

	out, err := readInts(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// LoadInts is LoadInt64 narrowed to int, for cluster ids and channel indices.
func LoadInts(path string) ([]int, error) {
	wide, err := LoadInt64(path)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(wide))
	for i, v := range wide {
		out[i] = int(v)
	}
	return out, nil
}

// readInts dispatches on the array dtype, ignoring byte order which npyio resolves.
func readInts(r *npyio.Reader) ([]int64, error) {
	dtype := strings.TrimLeft(r.Header.Descr.Type, "<>|=")
	switch dtype {
	case "i8":
		var v []int64
		err := r.Read(&v)
		return v, err
	case "u8":
		var v []uint64
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return widen(v), nil
	case "i4":
		var v []int32
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return widen(v), nil
	case "u4":
		var v []uint32
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return widen(v), nil
	case "i2":
		var v []int16
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return widen(v), nil
	case "u2":
		var v []uint16
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return widen(v), nil
	case "f8":
		var v []float64
		if err := r.Read(&v); err != nil {
			return nil, err
		}
		return widen(v), nil
	default:
		return nil, fmt.Errorf("unsupported npy dtype %q for an integer array", r.Header.Descr.Type)
	}
}

type number interface {
	~int16 | ~uint16 | ~int32 | ~uint32 | ~uint64 | ~float64
}

func widen[T number](v []T) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}

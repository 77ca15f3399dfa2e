package toolchain

import (
	"bytes"
	"debug/macho"

	"github.com/pkg/errors"
)

const (
	lcLoadDylib       = 0xc
	lcIDDylib         = 0xd
	lcLazyLoadDylib   = 0x20
	lcLoadWeakDylib   = 0x80000018
	lcReexportDylib   = 0x8000001f
	lcLoadUpwardDylib = 0x80000023
)

// MachOLister reads dylib load commands in-process. Its output has the same
// shape as ParseOtool: the binary's own id first, then the loaded libraries.
type MachOLister struct{}

func (MachOLister) ListDependencies(path string) ([]string, error) {
	f, closer, err := openMachO(path)
	if err != nil {
		return nil, err
	}
	defer closer()

	var id string
	var refs []string
	seen := make(map[string]bool)
	for _, load := range f.Loads {
		cmd, name, ok := dylibCommand(f, load.Raw())
		if !ok {
			continue
		}
		if cmd == lcIDDylib {
			id = name
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		refs = append(refs, name)
	}

	if id != "" && !seen[id] {
		refs = append([]string{id}, refs...)
	}
	return refs, nil
}

// openMachO opens a thin file, or the first architecture of a universal one.
func openMachO(path string) (*macho.File, func(), error) {
	fat, err := macho.OpenFat(path)
	if err == nil {
		if len(fat.Arches) == 0 {
			fat.Close()
			return nil, nil, errors.Errorf("%s: universal binary without architectures", path)
		}
		return fat.Arches[0].File, func() { fat.Close() }, nil
	}
	if !errors.Is(err, macho.ErrNotFat) {
		return nil, nil, errors.Wrapf(err, "failed to read %s", path)
	}

	f, err := macho.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return f, func() { f.Close() }, nil
}

func dylibCommand(f *macho.File, raw []byte) (uint32, string, bool) {
	if len(raw) < 12 {
		return 0, "", false
	}
	cmd := f.ByteOrder.Uint32(raw[0:4])
	switch cmd {
	case lcLoadDylib, lcIDDylib, lcLazyLoadDylib, lcLoadWeakDylib, lcReexportDylib, lcLoadUpwardDylib:
	default:
		return 0, "", false
	}
	off := f.ByteOrder.Uint32(raw[8:12])
	if int(off) >= len(raw) {
		return 0, "", false
	}
	name := raw[off:]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return cmd, string(name), true
}

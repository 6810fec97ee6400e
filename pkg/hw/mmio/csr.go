// Package mmio accesses the board through memory-mapped I/O.
//
// Register addresses come from the csr.csv file generated together with
// the gateware, which lists every CSR, memory region and constant.
package mmio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// CSR describes a register.
type CSR struct {
	Name string
	Addr uint64
	// Size is the number of CSR words.
	Size int
	// Mode is "ro" or "rw".
	Mode string
}

// Region describes a memory region.
type Region struct {
	Name string
	Addr uint64
	Size int
}

// Map is the content of a csr.csv file.
type Map struct {
	Bases     map[string]uint64
	Registers map[string]CSR
	Regions   map[string]Region
	Constants map[string]string
}

// ParseError reports a malformed csr.csv line.
type ParseError struct {
	Line int
	Msg  string
}

// Error implements error.
func (e *ParseError) Error() string {
	return fmt.Sprintf("csr map line %d: %s", e.Line, e.Msg)
}

// LoadMap reads a csr.csv file.
func LoadMap(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseMap(f)
}

// ParseMap parses csr.csv content.
func ParseMap(r io.Reader) (*Map, error) {
	m := &Map{
		Bases:     make(map[string]uint64),
		Registers: make(map[string]CSR),
		Regions:   make(map[string]Region),
		Constants: make(map[string]string),
	}
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			return m, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := reader.FieldPos(0)
		if len(rec) < 3 {
			return nil, &ParseError{Line: line, Msg: "too few fields"}
		}
		kind, name, value := rec[0], rec[1], rec[2]
		switch kind {
		case "constant":
			m.Constants[name] = value
			continue
		case "csr_base", "csr_register", "memory_region":
		default:
			// unknown kinds are ignored
			continue
		}
		addr, err := strconv.ParseUint(value, 0, 64)
		if err != nil {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("invalid address %q", value)}
		}
		size := 1
		if len(rec) > 3 && rec[3] != "" {
			if size, err = strconv.Atoi(rec[3]); err != nil || size <= 0 {
				return nil, &ParseError{Line: line, Msg: fmt.Sprintf("invalid size %q", rec[3])}
			}
		}
		switch kind {
		case "csr_base":
			m.Bases[name] = addr
		case "csr_register":
			mode := "rw"
			if len(rec) > 4 && rec[4] != "" {
				mode = rec[4]
			}
			m.Registers[name] = CSR{Name: name, Addr: addr, Size: size, Mode: mode}
		case "memory_region":
			m.Regions[name] = Region{Name: name, Addr: addr, Size: size}
		}
	}
}

// Constant returns a numeric constant.
func (m *Map) Constant(name string) (uint64, bool) {
	v, ok := m.Constants[name]
	if !ok {
		return 0, false
	}
	switch strings.ToLower(v) {
	case "true":
		return 1, true
	case "false":
		return 0, true
	}
	n, err := strconv.ParseUint(v, 0, 64)
	return n, err == nil
}

package shim

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	glog "github.com/bywater/sandlibc/internal/log"
	"github.com/bywater/sandlibc/internal/trace"
)

// InvokeFunc adapts raw call arguments (i32/i64 values widened to uint64)
// to a typed shim entry point. Results are widened the same way; pointers
// and i32 results occupy the low 32 bits.
type InvokeFunc func(s *Shim, args []uint64) (uint64, error)

// Symbol describes one linkable C symbol in the export surface.
type Symbol struct {
	Name     string
	Category trace.Tag
	Params   int // number of argument slots the raw signature takes
	Results  int // 0 or 1
	Invoke   InvokeFunc
}

// ErrUnknownSymbol is returned by Call for names outside the export table.
var ErrUnknownSymbol = errors.New("shim: unknown symbol")

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Symbol)
)

// register adds a symbol to the export table. Called from init() in each
// component file, the same way each concern self-registers its C names.
func register(sym Symbol) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[sym.Name] = &sym

	if Debug && glog.L != nil {
		glog.L.SymbolRegister(string(sym.Category), sym.Name)
	}
}

// Symbols returns the export table sorted by name.
func Symbols() []Symbol {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Symbol, 0, len(registry))
	for _, sym := range registry {
		out = append(out, *sym)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Exports returns the symbol table for this instance, for the embedder to
// link against the guest's imports.
func (s *Shim) Exports() map[string]Symbol {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make(map[string]Symbol, len(registry))
	for name, sym := range registry {
		out[name] = *sym
	}
	return out
}

// Call dispatches a raw call by symbol name. Missing trailing arguments
// read as zero; extra arguments are ignored.
func (s *Shim) Call(name string, args ...uint64) (uint64, error) {
	registryMu.RLock()
	sym, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSymbol, name)
	}
	if len(args) < sym.Params {
		padded := make([]uint64, sym.Params)
		copy(padded, args)
		args = padded
	}
	return sym.Invoke(s, args)
}

package harness

import (
	"bytes"
	"debug/elf"
	"fmt"
	"os"
	"reflect"
	"sort"

	"github.com/roach88/symslash/internal/codec"
	"github.com/roach88/symslash/internal/object"
	"github.com/roach88/symslash/internal/store"
	"github.com/roach88/symslash/internal/testutil"
)

// evaluate checks one assertion against the final state.
func (h *Harness) evaluate(a Assertion) error {
	switch a.Type {
	case AssertStoreEntries:
		return h.assertStoreEntries(a)
	case AssertSymbols:
		return h.assertSymbols(a)
	case AssertResolves:
		return h.assertResolves(a, true)
	case AssertUnresolved:
		return h.assertResolves(a, false)
	case AssertStaticTable:
		return h.assertStaticTable(a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) assertStoreEntries(a Assertion) error {
	got, err := StoreEntries(h.result.StorePath, h.opts.Format)
	if err != nil {
		return err
	}
	want := a.Entries
	if want == nil {
		want = []EntrySpec{}
	}
	if !reflect.DeepEqual(got, want) {
		return fmt.Errorf("store entries = %v, want %v", got, want)
	}
	return nil
}

// StoreEntries returns the entries of the store at path ordered by identity.
// A missing store has no entries.
func StoreEntries(path string, format codec.Format) ([]EntrySpec, error) {
	snap, err := store.Load(path, format)
	if err != nil {
		return nil, err
	}
	entries := make([]EntrySpec, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		entries = append(entries, EntrySpec{ID: uint64(e.ID), Name: e.Name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}

func (h *Harness) assertSymbols(a Assertion) error {
	f, err := object.Open(h.result.Current[a.Object])
	if err != nil {
		return err
	}
	got := []string{}
	for _, s := range f.DynamicSymbols() {
		got = append(got, s.Name)
	}
	want := a.Names
	if want == nil {
		want = []string{}
	}
	if !reflect.DeepEqual(got, want) {
		return fmt.Errorf("%s symbols = %q, want %q", a.Object, got, want)
	}
	return nil
}

// assertResolves looks every name up through .gnu.hash and .hash. With want
// set both lookups must find the same index; otherwise neither may.
func (h *Harness) assertResolves(a Assertion, want bool) error {
	data, err := os.ReadFile(h.result.Current[a.Object])
	if err != nil {
		return err
	}
	for _, name := range a.Names {
		gi, gok, err := testutil.LookupGNU(data, name)
		if err != nil {
			return err
		}
		si, sok, err := testutil.LookupSysv(data, name)
		if err != nil {
			return err
		}
		switch {
		case want && !(gok && sok):
			return fmt.Errorf("%s: %q not resolved (gnu=%v sysv=%v)", a.Object, name, gok, sok)
		case want && gi != si:
			return fmt.Errorf("%s: %q resolves to %d through .gnu.hash and %d through .hash", a.Object, name, gi, si)
		case !want && (gok || sok):
			return fmt.Errorf("%s: %q unexpectedly resolved (gnu=%v sysv=%v)", a.Object, name, gok, sok)
		}
	}
	return nil
}

func (h *Harness) assertStaticTable(a Assertion) error {
	data, err := os.ReadFile(h.result.Current[a.Object])
	if err != nil {
		return err
	}
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return err
	}
	present := f.SectionByType(elf.SHT_SYMTAB) != nil
	if present != *a.Present {
		return fmt.Errorf("%s: static symbol table present = %v, want %v", a.Object, present, *a.Present)
	}
	return nil
}

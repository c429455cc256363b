package vpt

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"

	"github.com/meigma/vpt/core/testutil"
)

func TestReadPathDoesNotAllocate(t *testing.T) {
	table := buildTestTable(t, testVendor,
		testutil.TestProgram{Name: "main", Payload: []byte("main payload")},
		testutil.TestProgram{Name: "lib/util", Payload: []byte("util payload")},
		testutil.TestProgram{Name: "lib/str", Payload: []byte("str payload")},
	)

	allocs := testing.AllocsPerRun(100, func() {
		v, err := Validate(table, testVendor)
		if err != nil {
			panic(err)
		}
		it := v.Iter()
		for _, ok := it.Next(); ok; _, ok = it.Next() {
		}
		if _, ok := v.Lookup("lib/str"); !ok {
			panic("lookup failed")
		}
		_ = v.Len()
	})
	assert.Zero(t, allocs)

	allocs = testing.AllocsPerRun(100, func() {
		v, err := ValidateAt(unsafe.Pointer(&table[0]), testVendor)
		if err != nil {
			panic(err)
		}
		_ = v.Len()
	})
	assert.Zero(t, allocs)
}

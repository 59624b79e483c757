// Package vm implements the chainsaw virtual machine.
//
// This package contains:
//   - Tagged value representation
//   - Bytecode modules, a label-aware builder and a disassembler
//   - A fixed-capacity slot heap with an embedded free list
//   - Extern payloads for host data stored in heap slots
//   - The Runtime shared by every VM step, and the VM stepper itself
//
// The VM never collects garbage on its own. When an allocation fails it
// returns RequestGC with the instruction pointer left on the allocating
// instruction, and the caller decides which slots survive.
package vm

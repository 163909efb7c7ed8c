package ub_test

import (
	"fmt"
	"strings"

	"github.com/kolkov/ubcheck/ub"
)

// A program that allocates eight bytes on the heap and exits without
// freeing them: the leak check turns this into a diagnosis.
const leakyProgram = `
format: v1
start: main
functions:
  - name: main
    locals:
      p:
        ptr: {kind: raw}
    start: bb0
    blocks:
      - name: bb0
        statements:
          - storage_live: p
        terminator:
          intrinsic:
            op: allocate
            args:
              - {const_int: {value: 8, type: u64}}
              - {const_int: {value: 8, type: u64}}
            ret: {local: p}
            ret_type:
              ptr: {kind: raw}
            next: bb1
      - name: bb1
        terminator:
          intrinsic:
            op: exit
`

func ExampleRun() {
	res, err := ub.Run(strings.NewReader(leakyProgram), ub.Options{})
	if err != nil {
		fmt.Println("load error:", err)
		return
	}
	fmt.Println(res.Kind)
	fmt.Println(res.Diagnosis.Reason)
	// Output:
	// undefined behavior
	// memory leaked: allocation 1 (8 bytes) was never deallocated
}

func ExampleCheck() {
	err := ub.Check(strings.NewReader("format: v9\nstart: main\nfunctions: []\n"))
	fmt.Println(err)
	// Output:
	// unsupported format version v9, this build reads v1
}

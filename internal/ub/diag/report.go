package diag

import (
	"fmt"
	"io"
	"strings"
)

// Report writes a human-readable block describing why a run stopped.
//
// The format follows the usual violation-report shape: a banner, the
// diagnosis, and the operation context when one was recorded.
//
// Example output:
//
//	==================
//	UNDEFINED BEHAVIOR
//	  write access through a disabled tag
//	  at: store (alloc 3, offset 4, size 4)
//	==================
func Report(w io.Writer, ub *UBError) {
	var b strings.Builder
	b.WriteString("==================\n")
	b.WriteString("UNDEFINED BEHAVIOR\n")
	fmt.Fprintf(&b, "  %s\n", ub.Reason)
	if ub.Context != "" {
		fmt.Fprintf(&b, "  at: %s\n", ub.Context)
	}
	b.WriteString("==================\n")
	io.WriteString(w, b.String()) //nolint:errcheck // best-effort diagnostics sink
}

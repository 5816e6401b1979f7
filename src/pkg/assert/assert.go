package assert

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// Assert panics when condition is false. The optional args are a format
// string followed by its operands. Used for contract violations that indicate
// a programming error rather than a recoverable condition.
func Assert(condition bool, args ...any) {
	if condition {
		return
	}

	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "unknown"
		line = 0
	}
	location := fmt.Sprintf("%s:%d", filepath.Base(file), line)

	if len(args) == 0 {
		panic(fmt.Sprintf("assertion failed at %s", location))
	}

	format, isString := args[0].(string)
	if !isString {
		panic(fmt.Sprintf("assertion failed at %s: %v", location, args))
	}
	panic(fmt.Sprintf("assertion failed at %s: %s", location, fmt.Sprintf(format, args[1:]...)))
}

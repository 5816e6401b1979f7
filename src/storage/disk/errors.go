package disk

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrInvalidPage reports a page number outside the file or a page that
	// belongs to another table.
	ErrInvalidPage = errors.New("invalid page")
	// ErrCorruptStorage reports short reads/writes, a file length that is not
	// a whole number of pages, or undecodable page bytes. The file should not
	// be used any further.
	ErrCorruptStorage = errors.New("corrupt storage")
	ErrNoSuchTuple    = errors.New("no such tuple")
	ErrSchemaMismatch = errors.New("tuple schema does not match table")
)

// shortIO reports a partial page read or write as ErrCorruptStorage, keeping
// the I/O error, if any, in the chain.
func shortIO(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if err == nil {
		return errors.Wrap(ErrCorruptStorage, msg)
	}
	return errors.Errorf("%s: %w: %w", msg, ErrCorruptStorage, err)
}

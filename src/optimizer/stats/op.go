package stats

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Op is a comparison operator of a predicate `column op constant`.
type Op uint8

const (
	OpEquals Op = iota
	OpGreaterThan
	OpLessThan
	OpLessThanOrEq
	OpGreaterThanOrEq
	OpLike
	OpNotEquals
)

var ErrUnknownOp = errors.New("unknown operator")

var opNames = [...]string{
	OpEquals:          "=",
	OpGreaterThan:     ">",
	OpLessThan:        "<",
	OpLessThanOrEq:    "<=",
	OpGreaterThanOrEq: ">=",
	OpLike:            "LIKE",
	OpNotEquals:       "<>",
}

// Ops lists every operator in declaration order.
func Ops() []Op {
	return []Op{OpEquals, OpGreaterThan, OpLessThan, OpLessThanOrEq, OpGreaterThanOrEq, OpLike, OpNotEquals}
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

func ParseOp(s string) (Op, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "=", "==":
		return OpEquals, nil
	case ">":
		return OpGreaterThan, nil
	case "<":
		return OpLessThan, nil
	case "<=":
		return OpLessThanOrEq, nil
	case ">=":
		return OpGreaterThanOrEq, nil
	case "LIKE":
		return OpLike, nil
	case "<>", "!=":
		return OpNotEquals, nil
	default:
		return 0, errors.Wrapf(ErrUnknownOp, "%q", s)
	}
}

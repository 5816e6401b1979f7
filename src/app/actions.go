package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/go-faster/errors"

	"github.com/Blackdeer1524/HeapDB/src/bufferpool"
	"github.com/Blackdeer1524/HeapDB/src/optimizer/stats"
	"github.com/Blackdeer1524/HeapDB/src/pkg/common"
	"github.com/Blackdeer1524/HeapDB/src/storage/tuple"
)

var (
	ErrBadRow      = errors.New("malformed csv row")
	ErrBadConstant = errors.New("malformed predicate constant")
)

// Load inserts every row of the CSV file at path into table and flushes the
// result. When header is set the first row is skipped.
func Load(table, path string, header bool) Action {
	return func(ctx context.Context, s Session) error {
		hf, err := s.Engine.Catalog().TableByName(table)
		if err != nil {
			return err
		}
		schema := hf.Schema()

		f, err := s.Fs.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.FieldsPerRecord = schema.NumFields()
		r.TrimLeadingSpace = true

		rows := 0
		for line := 1; ; line++ {
			record, err := r.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return errors.Errorf("%s: %w: %w", path, ErrBadRow, err)
			}
			if header && line == 1 {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			t, err := parseRow(schema, record)
			if err != nil {
				return errors.Wrapf(err, "%s line %d", path, line)
			}
			if err := insert(s, table, t); err != nil {
				return errors.Wrapf(err, "%s line %d", path, line)
			}
			rows++
		}

		if err := s.Engine.Flush(); err != nil {
			return err
		}

		s.Log.Infow("csv loaded", "table", table, "rows", rows)
		_, err = fmt.Fprintf(s.Out, "loaded %d rows into %s\n", rows, table)
		return err
	}
}

// insert retries once after writing dirty pages back when the pool has no
// clean page left to evict.
func insert(s Session, table string, t *tuple.Tuple) error {
	_, err := s.Engine.Insert(table, t)
	if !errors.Is(err, bufferpool.ErrBufferPoolFull) {
		return err
	}

	if err := s.Engine.Flush(); err != nil {
		return err
	}
	_, err = s.Engine.Insert(table, t)
	return err
}

func parseRow(schema *tuple.Schema, record []string) (*tuple.Tuple, error) {
	fields := make([]tuple.Field, len(record))
	for i, raw := range record {
		desc, err := schema.Field(i)
		if err != nil {
			return nil, err
		}

		f, err := parseField(desc.Type, raw)
		if err != nil {
			return nil, errors.Errorf("field %s: %w: %w", desc, ErrBadRow, err)
		}
		fields[i] = f
	}

	return tuple.New(schema, fields...)
}

func parseField(typ tuple.Type, raw string) (tuple.Field, error) {
	switch typ {
	case tuple.IntType:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, err
		}
		return tuple.NewIntField(int32(v)), nil
	case tuple.StringType:
		return tuple.NewStringField(raw), nil
	default:
		return nil, errors.Wrapf(tuple.ErrUnknownType, "%s", typ)
	}
}

// Analyze recomputes the statistics of every table and prints them.
func Analyze() Action {
	return func(ctx context.Context, s Session) error {
		if err := s.Engine.Analyze(ctx); err != nil {
			return err
		}

		w := tabwriter.NewWriter(s.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TABLE\tROWS\tSCAN COST")
		for _, name := range s.Engine.Registry().Names() {
			ts, _ := s.Engine.Stats(name)
			fmt.Fprintf(w, "%s\t%d\t%.0f\n", name, ts.TotalTuples(), ts.EstimateScanCost())
		}

		return w.Flush()
	}
}

// Estimate analyzes the database and prints the estimated selectivity and
// cardinality of the predicate `field op value` on table.
func Estimate(table, field, op, value string) Action {
	return func(ctx context.Context, s Session) error {
		predOp, err := stats.ParseOp(op)
		if err != nil {
			return err
		}

		hf, err := s.Engine.Catalog().TableByName(table)
		if err != nil {
			return err
		}
		idx, err := hf.Schema().IndexOf(field)
		if err != nil {
			return errors.Wrapf(err, "table %s", table)
		}
		typ, err := hf.Schema().FieldType(idx)
		if err != nil {
			return err
		}
		constant, err := parseField(typ, value)
		if err != nil {
			return errors.Errorf("%s %s %q: %w: %w", field, predOp, value, ErrBadConstant, err)
		}

		if err := s.Engine.Analyze(ctx); err != nil {
			return err
		}
		ts, ok := s.Engine.Stats(table)
		if !ok {
			return errors.Errorf("no statistics for table %s", table)
		}

		sel, err := ts.EstimateSelectivity(idx, predOp, constant)
		if err != nil {
			return err
		}

		fmt.Fprintf(s.Out, "%s %s %s on %s\n", field, predOp, value, table)
		fmt.Fprintf(s.Out, "selectivity: %.4f\n", sel)
		_, err = fmt.Fprintf(s.Out, "estimated rows: %d of %d\n", ts.EstimateCardinality(sel), ts.TotalTuples())
		return err
	}
}

// Inspect prints the page layout of table and the slot usage of each page.
func Inspect(table string) Action {
	return func(_ context.Context, s Session) error {
		hf, err := s.Engine.Catalog().TableByName(table)
		if err != nil {
			return err
		}

		count, err := hf.PageCount()
		if err != nil {
			return err
		}
		layout := hf.Layout()

		fmt.Fprintf(s.Out, "table %s (id %d)\n", table, hf.ID())
		fmt.Fprintf(s.Out, "schema: %s\n", hf.Schema())
		fmt.Fprintf(s.Out, "pages: %d, slots per page: %d, header bytes: %d, tuple bytes: %d\n",
			count, layout.SlotCount(), layout.HeaderSize(), layout.TupleSize())

		w := tabwriter.NewWriter(s.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PAGE\tUSED\tFREE\tDIRTY")
		for pageID := range count {
			addr := common.PageAddress{TableID: hf.ID(), PageID: common.PageID(pageID)}
			p, err := s.Engine.Pool().GetPage(addr, common.AccessShared)
			if err != nil {
				return err
			}

			free := p.NumEmptySlots()
			fmt.Fprintf(w, "%d\t%d\t%d\t%t\n", pageID, p.NumSlots()-free, free, p.IsDirty())
		}

		return w.Flush()
	}
}

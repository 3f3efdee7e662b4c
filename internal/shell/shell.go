// Package shell implements the command interpreter behind cmd/offheap.
//
// The shell owns one lazily created instance of every structure and maps
// line-oriented commands onto their operations. Arguments are tokenized with
// shell quoting rules, so symbols may contain spaces when quoted.
package shell

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/hupe1980/offheap"
	"github.com/hupe1980/offheap/btree"
	"github.com/hupe1980/offheap/flattable"
	"github.com/hupe1980/offheap/hashtable"
	"github.com/hupe1980/offheap/lists"
	"github.com/hupe1980/offheap/sparse"
	"github.com/hupe1980/offheap/symtab"
)

var (
	// ErrUnknownCommand is returned for a command the shell does not know.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrUsage is returned when a command has the wrong arguments.
	ErrUsage = errors.New("usage")
)

// HelpText lists every command.
const HelpText = `
Commands:
  .help                      - Show this help message
  .stats                     - Show arena and metrics statistics
  .reset                     - Release every structure
  .exit                      - Exit the program

  HT PUT key value           - Hashtable: store a pair
  HT GET key                 - Hashtable: look up a key
  HT LEN                     - Hashtable: number of keys

  BT PUT key value           - B+tree: store (replace) a value
  BT ADD key delta           - B+tree: add delta to the stored value
  BT GET key                 - B+tree: look up a key
  BT SCAN [start] [limit]    - B+tree: ordered scan from start

  SYM INTERN string          - Symbol table: intern a string
  SYM LOOKUP string          - Symbol table: find without interning
  SYM STRING symbol          - Symbol table: resolve a symbol

  SM PUT x y value           - Sparse matrix: set a cell (0 is a no-op)
  SM ADD x y delta           - Sparse matrix: add delta to a cell
  SM GET x y                 - Sparse matrix: read a cell
  SM ROW x                   - Sparse matrix: list a row
  SM ROWS                    - Sparse matrix: list populated rows

  LIST NEW                   - Lists: create a list
  LIST APPEND list value...  - Lists: append values
  LIST SHOW list             - Lists: print a list

  FT APPEND value...         - Flat table: append a row (first row fixes the width)
  FT GET row                 - Flat table: read a row
  FT SET row col value       - Flat table: write a cell
`

// Shell interprets commands against a set of off-heap structures.
type Shell struct {
	out     io.Writer
	opts    []offheap.Option
	metrics *offheap.BasicMetricsCollector

	ht   *hashtable.Table
	bt   *btree.Tree
	sym  *symtab.Table
	sm   *sparse.Matrix
	ls   *lists.Lists
	ft   *flattable.Table
	scan int
}

// New creates a shell that writes results to out. opts are passed to every
// structure it creates. Without a metrics collector in opts the shell
// installs a BasicMetricsCollector; .stats reports metrics only when the
// effective collector is a BasicMetricsCollector.
func New(out io.Writer, opts ...offheap.Option) *Shell {
	opts = offheap.WithDefaults(opts, offheap.WithMetricsCollector(&offheap.BasicMetricsCollector{}))
	metrics, _ := offheap.ApplyOptions(opts...).Metrics.(*offheap.BasicMetricsCollector)
	return &Shell{
		out:     out,
		opts:    opts,
		metrics: metrics,
		scan:    20,
	}
}

// Exec runs one command line.
func (s *Shell) Exec(line string) error {
	args, err := shellquote.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}

	cmd := strings.ToUpper(args[0])
	switch cmd {
	case ".HELP":
		_, err := io.WriteString(s.out, HelpText)
		return err
	case ".STATS":
		return s.stats()
	case ".RESET":
		s.Close()
		return nil
	}

	if len(args) < 2 {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
	sub, rest := strings.ToUpper(args[1]), args[2:]

	switch cmd {
	case "HT":
		return s.hashtable(sub, rest)
	case "BT":
		return s.btree(sub, rest)
	case "SYM":
		return s.symtab(sub, rest)
	case "SM":
		return s.sparse(sub, rest)
	case "LIST":
		return s.lists(sub, rest)
	case "FT":
		return s.flattable(sub, rest)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, args[0])
	}
}

func (s *Shell) printf(format string, a ...any) {
	fmt.Fprintf(s.out, format, a...)
}

func parseInts(args []string, n int) ([]int64, error) {
	if n >= 0 && len(args) != n {
		return nil, fmt.Errorf("%w: expected %d arguments, got %d", ErrUsage, n, len(args))
	}
	out := make([]int64, len(args))
	for i, a := range args {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrUsage, a)
		}
		out[i] = v
	}
	return out, nil
}

func (s *Shell) hashtable(sub string, args []string) error {
	if s.ht == nil {
		ht, err := hashtable.New(hashtable.Config{}, s.opts...)
		if err != nil {
			return err
		}
		s.ht = ht
	}

	switch sub {
	case "PUT":
		v, err := parseInts(args, 2)
		if err != nil {
			return err
		}
		if err := s.ht.Put(v[0], v[1]); err != nil {
			return err
		}
		s.printf("OK\n")
	case "GET":
		v, err := parseInts(args, 1)
		if err != nil {
			return err
		}
		if val, ok := s.ht.Get(v[0]); ok {
			s.printf("%d\n", val)
		} else {
			s.printf("(not found)\n")
		}
	case "LEN":
		s.printf("%d keys, %d buckets\n", s.ht.Len(), s.ht.Capacity())
	default:
		return fmt.Errorf("%w: HT %s", ErrUnknownCommand, sub)
	}
	return nil
}

func (s *Shell) btree(sub string, args []string) error {
	if s.bt == nil {
		bt, err := btree.New(btree.Config{}, s.opts...)
		if err != nil {
			return err
		}
		s.bt = bt
	}

	switch sub {
	case "PUT", "ADD":
		v, err := parseInts(args, 2)
		if err != nil {
			return err
		}
		fn := func(int64, bool) int64 { return v[1] }
		if sub == "ADD" {
			fn = func(prev int64, _ bool) int64 { return prev + v[1] }
		}
		if err := s.bt.Upsert(btree.Key{v[0]}, fn); err != nil {
			return err
		}
		s.printf("OK\n")
	case "GET":
		v, err := parseInts(args, 1)
		if err != nil {
			return err
		}
		if val, ok := s.bt.Get(btree.Key{v[0]}); ok {
			s.printf("%d\n", val)
		} else {
			s.printf("(not found)\n")
		}
	case "SCAN":
		v, err := parseInts(args, -1)
		if err != nil {
			return err
		}
		var start btree.Key
		limit := s.scan
		if len(v) > 0 {
			start = btree.Key{v[0]}
		}
		if len(v) > 1 {
			limit = int(v[1])
		}
		n := 0
		err = s.bt.Iterate(start, func(k btree.Key, val int64) bool {
			if n >= limit {
				return false
			}
			s.printf("%d: %d\n", k[0], val)
			n++
			return true
		})
		if err != nil {
			return err
		}
		s.printf("%d entries\n", n)
	default:
		return fmt.Errorf("%w: BT %s", ErrUnknownCommand, sub)
	}
	return nil
}

func (s *Shell) symtab(sub string, args []string) error {
	if s.sym == nil {
		sym, err := symtab.New(symtab.Config{}, s.opts...)
		if err != nil {
			return err
		}
		s.sym = sym
	}
	if len(args) != 1 {
		return fmt.Errorf("%w: SYM %s takes one argument", ErrUsage, sub)
	}

	switch sub {
	case "INTERN":
		sym, err := s.sym.Symbol(args[0])
		if err != nil {
			return err
		}
		s.printf("%d\n", sym)
	case "LOOKUP":
		if sym, ok := s.sym.Lookup(args[0]); ok {
			s.printf("%d\n", sym)
		} else {
			s.printf("(not found)\n")
		}
	case "STRING":
		v, err := parseInts(args, 1)
		if err != nil {
			return err
		}
		str, err := s.sym.String(symtab.Symbol(v[0])) //nolint:gosec // validated by String
		if err != nil {
			return err
		}
		s.printf("%q\n", str)
	default:
		return fmt.Errorf("%w: SYM %s", ErrUnknownCommand, sub)
	}
	return nil
}

func (s *Shell) sparse(sub string, args []string) error {
	if s.sm == nil {
		sm, err := sparse.New(s.opts...)
		if err != nil {
			return err
		}
		s.sm = sm
	}

	switch sub {
	case "PUT", "ADD":
		v, err := parseInts(args, 3)
		if err != nil {
			return err
		}
		if sub == "PUT" {
			err = s.sm.Put(v[0], v[1], v[2])
		} else {
			err = s.sm.Update(v[0], v[1], func(prev int64) int64 { return prev + v[2] })
		}
		if err != nil {
			return err
		}
		s.printf("OK\n")
	case "GET":
		v, err := parseInts(args, 2)
		if err != nil {
			return err
		}
		s.printf("%d\n", s.sm.Get(v[0], v[1]))
	case "ROW":
		v, err := parseInts(args, 1)
		if err != nil {
			return err
		}
		return s.sm.IterateRow(v[0], func(y, val int64) bool {
			s.printf("(%d, %d): %d\n", v[0], y, val)
			return true
		})
	case "ROWS":
		for x := range s.sm.Rows() {
			s.printf("%d\n", x)
		}
		s.printf("%d rows\n", s.sm.NumRows())
	default:
		return fmt.Errorf("%w: SM %s", ErrUnknownCommand, sub)
	}
	return nil
}

func (s *Shell) lists(sub string, args []string) error {
	if s.ls == nil {
		ls, err := lists.New(s.opts...)
		if err != nil {
			return err
		}
		s.ls = ls
	}

	switch sub {
	case "NEW":
		l, err := s.ls.CreateList()
		if err != nil {
			return err
		}
		s.printf("%d\n", l)
	case "APPEND":
		if len(args) < 2 {
			return fmt.Errorf("%w: LIST APPEND list value...", ErrUsage)
		}
		v, err := parseInts(args, -1)
		if err != nil {
			return err
		}
		for _, val := range v[1:] {
			if err := s.ls.Append(lists.List(v[0]), val); err != nil { //nolint:gosec // validated by Append
				return err
			}
		}
		s.printf("OK\n")
	case "SHOW":
		v, err := parseInts(args, 1)
		if err != nil {
			return err
		}
		var vals []string
		err = s.ls.Iterate(lists.List(v[0]), func(val int64) bool { //nolint:gosec // validated by Iterate
			vals = append(vals, strconv.FormatInt(val, 10))
			return true
		})
		if err != nil {
			return err
		}
		s.printf("[%s]\n", strings.Join(vals, " "))
	default:
		return fmt.Errorf("%w: LIST %s", ErrUnknownCommand, sub)
	}
	return nil
}

func (s *Shell) flattable(sub string, args []string) error {
	switch sub {
	case "APPEND":
		v, err := parseInts(args, -1)
		if err != nil {
			return err
		}
		if s.ft == nil {
			ft, err := flattable.New(len(v), s.opts...)
			if err != nil {
				return err
			}
			s.ft = ft
		}
		if len(v) != s.ft.Columns() {
			return &offheap.ErrColumnMismatch{Expected: s.ft.Columns(), Actual: len(v)}
		}
		row, err := s.ft.AppendRow()
		if err != nil {
			return err
		}
		if err := s.ft.WriteRow(row, v); err != nil {
			return err
		}
		s.printf("%d\n", row)
		return nil
	case "GET", "SET":
	default:
		return fmt.Errorf("%w: FT %s", ErrUnknownCommand, sub)
	}

	if s.ft == nil {
		return fmt.Errorf("%w: no rows appended", offheap.ErrOutOfBounds)
	}
	if sub == "GET" {
		v, err := parseInts(args, 1)
		if err != nil {
			return err
		}
		row := make([]int64, s.ft.Columns())
		if err := s.ft.ReadRow(offheap.RowID(v[0]), row); err != nil {
			return err
		}
		s.printf("%v\n", row)
		return nil
	}

	v, err := parseInts(args, 3)
	if err != nil {
		return err
	}
	if err := s.ft.WriteCell(offheap.RowID(v[0]), int(v[1]), v[2]); err != nil {
		return err
	}
	s.printf("OK\n")
	return nil
}

func (s *Shell) stats() error {
	type arenaStats interface{ String() string }
	var arenas []arenaStats
	if s.ht != nil {
		arenas = append(arenas, s.ht.Arena())
	}
	if s.bt != nil {
		arenas = append(arenas, s.bt.Arena())
	}
	if s.sm != nil {
		arenas = append(arenas, s.sm.Tree().Arena())
	}
	if s.ls != nil {
		arenas = append(arenas, s.ls.Arena())
	}
	if s.ft != nil {
		arenas = append(arenas, s.ft.Arena())
	}
	for _, a := range arenas {
		s.printf("%s\n", a)
	}
	if s.sym != nil {
		s.printf("Symbols{count: %d, slots: %d, data: %d B}\n", s.sym.Len(), s.sym.Capacity(), s.sym.DataSize())
	}
	if s.bt != nil {
		st := s.bt.Stats()
		s.printf("BTree{entries: %d, nodes: %d, leaves: %d, height: %d}\n", st.Entries, st.Nodes, st.Leaves, st.Height)
	}

	if s.metrics == nil {
		return nil
	}
	m := s.metrics.GetStats()
	s.printf("Metrics{page_allocs: %d, reserved: %d B, released: %d B, rehashes: %d, leaf_splits: %d, internal_splits: %d}\n",
		m.PageAllocs, m.BytesReserved, m.BytesReleased, m.Rehashes, m.LeafSplits, m.InternalSplits)
	return nil
}

// Close releases every structure. The shell recreates them on demand.
func (s *Shell) Close() {
	if s.ht != nil {
		s.ht.Release()
		s.ht = nil
	}
	if s.bt != nil {
		s.bt.Release()
		s.bt = nil
	}
	if s.sym != nil {
		s.sym.Release()
		s.sym = nil
	}
	if s.sm != nil {
		s.sm.Release()
		s.sm = nil
	}
	if s.ls != nil {
		s.ls.Release()
		s.ls = nil
	}
	if s.ft != nil {
		s.ft.Release()
		s.ft = nil
	}
}

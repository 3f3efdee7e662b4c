package offheap_test

import (
	"fmt"
	"log"

	"github.com/hupe1980/offheap"
	"github.com/hupe1980/offheap/btree"
	"github.com/hupe1980/offheap/hashtable"
	"github.com/hupe1980/offheap/lists"
	"github.com/hupe1980/offheap/resource"
	"github.com/hupe1980/offheap/sparse"
	"github.com/hupe1980/offheap/symtab"
)

// Example_hashtable demonstrates an off-heap int64 map.
func Example_hashtable() {
	ht, err := hashtable.New(hashtable.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer ht.Release()

	if err := ht.Put(5, 100); err != nil {
		log.Fatal(err)
	}

	v, ok := ht.Get(5)
	fmt.Println(v, ok)
	_, ok = ht.Get(6)
	fmt.Println(ok)
	// Output:
	// 100 true
	// false
}

// Example_btree demonstrates ordered iteration over composite keys.
func Example_btree() {
	tree, err := btree.New(btree.Config{KeyLength: 2, BlockSize: 4})
	if err != nil {
		log.Fatal(err)
	}
	defer tree.Release()

	for _, k := range []btree.Key{{2, 1}, {1, 9}, {1, 3}, {2, 0}} {
		if err := tree.Put(k, k[0]*10+k[1]); err != nil {
			log.Fatal(err)
		}
	}

	for k, v := range tree.All(btree.Key{1, 5}) {
		fmt.Println(k, v)
	}
	// Output:
	// [1 9] 19
	// [2 0] 20
	// [2 1] 21
}

// Example_symtab demonstrates string interning.
func Example_symtab() {
	st, err := symtab.New(symtab.Config{})
	if err != nil {
		log.Fatal(err)
	}
	defer st.Release()

	foo, _ := st.Symbol("foo")
	again, _ := st.Symbol("foo")
	bar, _ := st.Symbol("bar")
	s, _ := st.String(bar)

	fmt.Println(foo == again, foo == bar, s)
	// Output: true false bar
}

// Example_sparse demonstrates a sparse matrix row scan.
func Example_sparse() {
	m, err := sparse.New()
	if err != nil {
		log.Fatal(err)
	}
	defer m.Release()

	_ = m.Put(3, 4, 10)
	_ = m.Put(3, 5, 0) // zero is never stored

	for y, v := range m.Row(3) {
		fmt.Println(y, v)
	}
	// Output: 4 10
}

// Example_memoryLimit demonstrates a shared memory budget across structures.
func Example_memoryLimit() {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 64 * 1024})
	metrics := &offheap.BasicMetricsCollector{}
	opts := []offheap.Option{
		offheap.WithMemoryController(rc),
		offheap.WithMetricsCollector(metrics),
	}

	l, err := lists.New(opts...)
	if err != nil {
		log.Fatal(err)
	}
	defer l.Release()

	list, _ := l.CreateList()
	for i := int64(0); i < 3; i++ {
		_ = l.Append(list, i)
	}

	// The first arena took the whole budget.
	ht, err := hashtable.New(hashtable.Config{}, opts...)
	fmt.Println(ht == nil, err)
	fmt.Println(rc.MemoryUsage(), metrics.GetStats().PageAllocErrors)
	// Output:
	// true memory limit exceeded
	// 65536 1
}

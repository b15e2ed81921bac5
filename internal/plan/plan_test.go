package plan

import (
	"fmt"
	"iter"
	"math/rand"
	"slices"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuya-takeyama/split-sync/internal/walker"
)

const mb = 1024 * 1024

func entries(threshold int64, sizes map[string]int64) []walker.FileEntry {
	names := make([]string, 0, len(sizes))
	for name := range sizes {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []walker.FileEntry
	for _, name := range names {
		out = append(out, walker.FileEntry{
			Path:    "/src/" + name,
			RelPath: name,
			Size:    sizes[name],
			Class:   walker.Classify(sizes[name], threshold),
		})
	}
	return out
}

func memberPaths(p *Plan) []string {
	var all []string
	for _, u := range p.Units {
		all = append(all, u.RelPaths()...)
	}
	return all
}

func TestBuildConcreteScenario(t *testing.T) {
	files := entries(10*mb, map[string]int64{
		"a.dat": 500 * 1024,
		"b.dat": 15 * mb,
		"c.dat": 20 * mb,
	})

	p := Build(slices.Values(files), Options{BatchSize: 100, SortBySize: true})

	require.Len(t, p.Units, 3)
	assert.Equal(t, 2, p.Singles)
	assert.Equal(t, 1, p.Batches)
	assert.Equal(t, 3, p.TotalFiles)
	assert.Equal(t, int64(500*1024+35*mb), p.TotalBytes)

	first, ok := p.Units[0].(*SingleFile)
	require.True(t, ok)
	assert.Equal(t, "c.dat", first.RelPath)
	assert.Equal(t, 1, first.ID())

	second, ok := p.Units[1].(*SingleFile)
	require.True(t, ok)
	assert.Equal(t, "b.dat", second.RelPath)
	assert.Equal(t, 2, second.ID())

	batch, ok := p.Units[2].(*Batch)
	require.True(t, ok)
	assert.Equal(t, []string{"a.dat"}, batch.Paths)
	assert.Equal(t, 1, batch.Number)
	assert.Equal(t, 3, batch.ID())
	assert.Equal(t, int64(500*1024), batch.Bytes())
}

func TestBuildWithoutSortKeepsDiscoveryOrder(t *testing.T) {
	files := []walker.FileEntry{
		{RelPath: "small1", Size: 1, Class: walker.Small},
		{RelPath: "large-a", Size: 10, Class: walker.Large},
		{RelPath: "small2", Size: 2, Class: walker.Small},
		{RelPath: "large-b", Size: 30, Class: walker.Large},
	}

	p := Build(slices.Values(files), Options{BatchSize: 10})

	require.Len(t, p.Units, 3)
	assert.Equal(t, []string{"large-a"}, p.Units[0].RelPaths())
	assert.Equal(t, []string{"large-b"}, p.Units[1].RelPaths())
	assert.Equal(t, []string{"small1", "small2"}, p.Units[2].RelPaths())
}

func TestBuildBatchCounts(t *testing.T) {
	for _, k := range []int{1, 2, 3, 7, 100} {
		for _, f := range []int{0, 1, 2, 6, 7, 8, 99, 100, 101, 250} {
			t.Run(fmt.Sprintf("K=%d/F=%d", k, f), func(t *testing.T) {
				files := make([]walker.FileEntry, f)
				for i := range files {
					files[i] = walker.FileEntry{RelPath: fmt.Sprintf("f%04d", i), Size: 1, Class: walker.Small}
				}

				p := Build(slices.Values(files), Options{BatchSize: k})

				wantBatches := (f + k - 1) / k
				require.Len(t, p.Units, wantBatches)
				for i, u := range p.Units {
					b := u.(*Batch)
					assert.Equal(t, i+1, b.Number)
					if i < len(p.Units)-1 {
						assert.Len(t, b.Paths, k)
					} else {
						assert.LessOrEqual(t, len(b.Paths), k)
						assert.NotEmpty(t, b.Paths)
					}
				}

				want := relPathsOf(files)
				assert.Equal(t, want, memberPaths(p), "batches preserve discovery order")
			})
		}
	}
}

func relPathsOf(files []walker.FileEntry) []string {
	var out []string
	for _, f := range files {
		out = append(out, f.RelPath)
	}
	return out
}

func TestBuildPartition(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := rng.Intn(400)
		threshold := int64(rng.Intn(1000) + 1)
		files := make([]walker.FileEntry, n)
		for i := range files {
			size := int64(rng.Intn(2000))
			files[i] = walker.FileEntry{
				RelPath: fmt.Sprintf("dir%d/file%d", i%7, i),
				Size:    size,
				Class:   walker.Classify(size, threshold),
			}
		}

		p := Build(slices.Values(files), Options{BatchSize: rng.Intn(20) + 1, SortBySize: trial%2 == 0})

		got := memberPaths(p)
		want := relPathsOf(files)
		sort.Strings(got)
		sort.Strings(want)
		assert.Equal(t, want, got, "trial %d: every file in exactly one unit", trial)
		assert.Equal(t, n, p.TotalFiles)

		for i, u := range p.Units {
			assert.Equal(t, i+1, u.ID(), "ids follow submission order")
		}
	}
}

func TestSortLargeBySize(t *testing.T) {
	units := []*SingleFile{
		{RelPath: "b", Size: 5},
		{RelPath: "a", Size: 5},
		{RelPath: "c", Size: 9},
		{RelPath: "d", Size: 1},
	}

	SortLargeBySize(units)

	var order []string
	for _, u := range units {
		order = append(order, u.RelPath)
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, order)
}

func TestBuildIsLazyConsumer(t *testing.T) {
	calls := 0
	var seq iter.Seq[walker.FileEntry] = func(yield func(walker.FileEntry) bool) {
		for i := 0; i < 3; i++ {
			calls++
			if !yield(walker.FileEntry{RelPath: fmt.Sprint(i), Class: walker.Small}) {
				return
			}
		}
	}

	p := Build(seq, Options{})
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, p.Batches)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "job 4: big.iso", Describe(&SingleFile{Seq: 4, RelPath: "big.iso"}))
	assert.Equal(t, "job 2: batch of 2 files starting at a", Describe(&Batch{Seq: 2, Paths: []string{"a", "b"}}))
	assert.Equal(t, "job 9: empty batch", Describe(&Batch{Seq: 9}))
}

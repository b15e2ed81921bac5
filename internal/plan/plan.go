package plan

import (
	"cmp"
	"fmt"
	"iter"
	"slices"

	"github.com/samber/lo"
	"github.com/yuya-takeyama/split-sync/internal/walker"
)

// DefaultBatchSize is the number of small files grouped into one batch.
const DefaultBatchSize = 100

// Kind distinguishes the two unit variants.
type Kind string

const (
	KindSingle Kind = "single"
	KindBatch  Kind = "batch"
)

// Unit is one schedulable piece of transfer work: either a single large
// file or a batch of small files.
type Unit interface {
	// ID is the job sequence number, unique within a plan and starting at 1.
	ID() int
	Kind() Kind
	// RelPaths lists the member files relative to the source root.
	RelPaths() []string
	Bytes() int64
}

// SingleFile represents one large file
type SingleFile struct {
	Seq     int
	Path    string // Absolute source path
	RelPath string
	Size    int64
}

func (u *SingleFile) ID() int            { return u.Seq }
func (u *SingleFile) Kind() Kind         { return KindSingle }
func (u *SingleFile) RelPaths() []string { return []string{u.RelPath} }
func (u *SingleFile) Bytes() int64       { return u.Size }

// Batch represents up to BatchSize small files, kept in discovery order.
type Batch struct {
	Seq    int
	Number int // 1-based batch sequence number
	Paths  []string
	Size   int64
}

func (u *Batch) ID() int            { return u.Seq }
func (u *Batch) Kind() Kind         { return KindBatch }
func (u *Batch) RelPaths() []string { return u.Paths }
func (u *Batch) Bytes() int64       { return u.Size }

// Options configures Build.
type Options struct {
	BatchSize  int
	SortBySize bool
}

// Plan is the ordered list of units handed to the dispatcher.
type Plan struct {
	Units      []Unit
	TotalFiles int
	TotalBytes int64
	Singles    int
	Batches    int
}

// Build partitions the discovered files into units. Large files each become
// a SingleFile; small files are grouped into batches. Large units come first
// (sorted by descending size when SortBySize is set), followed by batches in
// discovery order. Unit IDs follow that submission order.
func Build(files iter.Seq[walker.FileEntry], opts Options) *Plan {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var (
		large []*SingleFile
		small []walker.FileEntry
	)
	for f := range files {
		if f.Class == walker.Large {
			large = append(large, &SingleFile{Path: f.Path, RelPath: f.RelPath, Size: f.Size})
			continue
		}
		small = append(small, f)
	}

	if opts.SortBySize {
		SortLargeBySize(large)
	}

	p := &Plan{
		Units:   make([]Unit, 0, len(large)+(len(small)+batchSize-1)/batchSize),
		Singles: len(large),
	}

	seq := 0
	for _, u := range large {
		seq++
		u.Seq = seq
		p.Units = append(p.Units, u)
		p.TotalFiles++
		p.TotalBytes += u.Size
	}

	for i, chunk := range lo.Chunk(small, batchSize) {
		seq++
		b := &Batch{
			Seq:    seq,
			Number: i + 1,
			Paths:  lo.Map(chunk, func(f walker.FileEntry, _ int) string { return f.RelPath }),
			Size:   lo.SumBy(chunk, func(f walker.FileEntry) int64 { return f.Size }),
		}
		p.Units = append(p.Units, b)
		p.Batches++
		p.TotalFiles += len(b.Paths)
		p.TotalBytes += b.Size
	}

	return p
}

// SortLargeBySize orders units by descending size. Equal sizes are ordered
// by relative path so the result is deterministic.
func SortLargeBySize(units []*SingleFile) {
	slices.SortStableFunc(units, func(a, b *SingleFile) int {
		if c := cmp.Compare(b.Size, a.Size); c != 0 {
			return c
		}
		return cmp.Compare(a.RelPath, b.RelPath)
	})
}

// Describe returns a short human description of a unit for logs.
func Describe(u Unit) string {
	paths := u.RelPaths()
	switch u.Kind() {
	case KindSingle:
		return fmt.Sprintf("job %d: %s", u.ID(), paths[0])
	default:
		if len(paths) == 0 {
			return fmt.Sprintf("job %d: empty batch", u.ID())
		}
		return fmt.Sprintf("job %d: batch of %d files starting at %s", u.ID(), len(paths), paths[0])
	}
}

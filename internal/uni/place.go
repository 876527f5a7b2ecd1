package uni

import "github.com/quillhpc/qsched/internal/resource"

// Arrangement is the mutually-exclusive placement arrangement (spec §3).
type Arrangement int

const (
	ArrangeFree Arrangement = iota
	ArrangePack
	ArrangeScatter
	ArrangeVScatter
)

func (a Arrangement) String() string {
	switch a {
	case ArrangeFree:
		return "free"
	case ArrangePack:
		return "pack"
	case ArrangeScatter:
		return "scatter"
	case ArrangeVScatter:
		return "vscatter"
	default:
		return "unknown"
	}
}

// Sharing is the orthogonal sharing mode (spec §3).
type Sharing int

const (
	SharingDefault Sharing = iota
	SharingShared
	SharingExcl
	SharingExclHost
)

func (s Sharing) String() string {
	switch s {
	case SharingShared:
		return "shared"
	case SharingExcl:
		return "excl"
	case SharingExclHost:
		return "exclhost"
	default:
		return "default"
	}
}

// Place is a resource_resv's place spec: arrangement, sharing mode, and an
// optional grouping resource name that partitions eligible nodes by value.
type Place struct {
	Arrangement Arrangement
	Sharing     Sharing
	Group       string // resource name, e.g. "group=switch"
}

// Chunk is one element of a select spec: count of identical units, a
// parse-order sequence number, a reference string, and its own resource
// requests (typically per-node resources).
type Chunk struct {
	Seq   int
	Count int
	Ref   string
	Reqs  resource.ReqList
}

// SelSpec is an ordered list of chunks plus cached aggregate info.
type SelSpec struct {
	Chunks      []Chunk
	TotalChunks int
	TotalCPUs   float64
	Defs        resource.DefSet
}

// Recompute refreshes TotalChunks, TotalCPUs, and Defs from Chunks.
func (s *SelSpec) Recompute(reg *resource.Registry) {
	s.TotalChunks = 0
	s.TotalCPUs = 0
	defs := map[string]*resource.Def{}
	for _, c := range s.Chunks {
		s.TotalChunks += c.Count
		for _, r := range c.Reqs {
			defs[r.Def.Name] = r.Def
			if r.Def.Name == "ncpus" {
				s.TotalCPUs += r.Value.Amount() * float64(c.Count)
			}
		}
	}
	set := make(resource.DefSet, len(defs))
	for k, v := range defs {
		set[k] = v
	}
	s.Defs = set
}

// NSpec is one placement decision record: which node supplies one chunk's
// resources, with its sub-sequence number within a superchunk and whether
// it is the last vnode contributing to that chunk.
type NSpec struct {
	ChunkSeq   int
	NodeIndex  int
	SubSeq     int
	EndOfChunk bool
	Provision  bool
	Reqs       resource.ReqList
}

package engine

import (
	"context"
	"time"

	"github.com/sanonone/vektor/pkg/config"
	"github.com/sanonone/vektor/pkg/core/distance"
	"github.com/sanonone/vektor/pkg/lock"
	"github.com/sanonone/vektor/pkg/storage/flatfile"
)

// Stats describes the stores of a data directory.
type Stats struct {
	Storage StorageStats `json:"storage"`
	Records RecordStats  `json:"records"`
	Config  ParamStats   `json:"config"`
	// Backend names the similarity kernel in use.
	Backend string `json:"backend"`
}

// StorageStats holds file sizes in bytes.
type StorageStats struct {
	VectorBytes  int64 `json:"vector_file_bytes"`
	GraphBytes   int64 `json:"graph_file_bytes"`
	IndexBytes   int64 `json:"meta_file_bytes"`
	PayloadBytes int64 `json:"payload_file_bytes"`
}

// RecordStats holds counts derived from file sizes and the graph header.
// VectorsTotal and IndexEntries include deleted records.
type RecordStats struct {
	VectorsTotal int64 `json:"vectors_total"`
	IndexEntries int64 `json:"meta_entries"`
	GraphNodes   int32 `json:"graph_nodes"`
	EntryPoint   int32 `json:"entry_point"`
}

// ParamStats echoes the layout parameters.
type ParamStats struct {
	Dimension      int `json:"dimension"`
	M              int `json:"hnsw_m"`
	M0             int `json:"hnsw_m0"`
	EfConstruction int `json:"hnsw_ef_construction"`
	Levels         int `json:"max_levels"`
}

// Stats reports sizes and counts under the shared lock. It never writes.
func (ix *Indexer) Stats(ctx context.Context) (st Stats, err error) {
	start := time.Now()
	defer func() { observe("stats", start, err) }()

	st = Stats{
		Config: ParamStats{
			Dimension:      ix.cfg.Dimension,
			M:              ix.cfg.M,
			M0:             ix.cfg.M0,
			EfConstruction: ix.cfg.EfConstruction,
			Levels:         ix.cfg.Levels,
		},
		Backend: distance.Backend(),
	}

	err = withStores(ctx, ix.locker, lock.Shared, ix.open, ix.logger, func(set *flatfile.Set) error {
		var err error
		if st.Storage.VectorBytes, err = set.Vectors.Size(); err != nil {
			return err
		}
		if st.Storage.GraphBytes, err = set.Graph.Size(); err != nil {
			return err
		}
		if st.Storage.PayloadBytes, err = set.Payloads.Size(); err != nil {
			return err
		}
		entries, err := set.Index.Len()
		if err != nil {
			return err
		}
		header, err := set.Graph.ReadHeader()
		if err != nil {
			return err
		}

		st.Storage.IndexBytes = int64(entries) * config.IndexRowSize
		st.Records = RecordStats{
			VectorsTotal: st.Storage.VectorBytes / set.Vectors.RowSize(),
			IndexEntries: int64(entries),
			GraphNodes:   header.TotalNodes,
			EntryPoint:   header.EntryPoint,
		}
		return nil
	})
	return st, err
}

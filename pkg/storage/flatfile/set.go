package flatfile

import (
	"errors"

	"github.com/sanonone/vektor/pkg/config"
)

// Set groups the four stores of one database generation.
type Set struct {
	Vectors  *VectorFile
	Graph    *GraphFile
	Index    *IDIndex
	Payloads *PayloadFile

	borrowed bool
}

// OpenSet opens the four stores at paths. On failure any store already
// opened is closed again.
func OpenSet(paths config.Paths, cfg config.Config) (*Set, error) {
	s := &Set{}
	var err error
	if s.Vectors, err = OpenVectorFile(paths.Vectors, cfg.Dimension); err != nil {
		return nil, err
	}
	if s.Graph, err = OpenGraphFile(paths.Graph, cfg.M, cfg.M0, cfg.Levels); err != nil {
		s.Close()
		return nil, err
	}
	if s.Index, err = OpenIDIndex(paths.Index); err != nil {
		s.Close()
		return nil, err
	}
	if s.Payloads, err = OpenPayloadFile(paths.Payloads); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Borrow returns a view of the same stores whose Close is a no-op, for code
// paths that must not release files owned by someone else.
func (s *Set) Borrow() *Set {
	return &Set{Vectors: s.Vectors, Graph: s.Graph, Index: s.Index, Payloads: s.Payloads, borrowed: true}
}

// Sync flushes every store.
func (s *Set) Sync() error {
	var errs []error
	if s.Vectors != nil {
		errs = append(errs, s.Vectors.Sync())
	}
	if s.Graph != nil {
		errs = append(errs, s.Graph.Sync())
	}
	if s.Index != nil {
		errs = append(errs, s.Index.Sync())
	}
	if s.Payloads != nil {
		errs = append(errs, s.Payloads.Sync())
	}
	return errors.Join(errs...)
}

// Close closes every opened store.
func (s *Set) Close() error {
	if s.borrowed {
		return nil
	}
	var errs []error
	if s.Vectors != nil {
		errs = append(errs, s.Vectors.Close())
	}
	if s.Graph != nil {
		errs = append(errs, s.Graph.Close())
	}
	if s.Index != nil {
		errs = append(errs, s.Index.Close())
	}
	if s.Payloads != nil {
		errs = append(errs, s.Payloads.Close())
	}
	return errors.Join(errs...)
}

package htree

import (
	"fmt"
	"log"

	"github.com/Carmen-Shannon/oxy-anim/common"
	"github.com/Carmen-Shannon/oxy-anim/engine/w3d"
	"github.com/go-gl/mathgl/mgl32"
)

// Load reads a hierarchy from an open w3d.ChunkHierarchy chunk. The header chunk must come first.
// Files older than version 3.0 have no explicit root, so one is synthesized at index 0 and every
// stored parent index is shifted by one.
//
// Parameters:
//   - r: the chunk reader with the hierarchy chunk open
//
// Returns:
//   - HTree: the loaded hierarchy posed at rest with an identity root
//   - error: error if the chunk is malformed or the pivots are inconsistent
func Load(r w3d.ChunkReader) (HTree, error) {
	ok, err := r.OpenChunk()
	if err != nil {
		return nil, fmt.Errorf("failed to open hierarchy header: %w", err)
	}
	if !ok || r.ID() != w3d.ChunkHierarchyHeader {
		return nil, w3d.ErrMissingHeader
	}
	var header w3d.HierarchyHeader
	if err := r.ReadStruct(&header); err != nil {
		return nil, fmt.Errorf("failed to read hierarchy header: %w", err)
	}
	if err := r.CloseChunk(); err != nil {
		return nil, err
	}

	t := &hTreeImpl{name: clampName(header.Name.String()), scaleFactor: 1}
	pre30 := header.Version < w3d.Pre30Version
	var records []w3d.PivotRecord

	for {
		ok, err := r.OpenChunk()
		if err != nil {
			return nil, fmt.Errorf("hierarchy %s: %w", t.name, err)
		}
		if !ok {
			break
		}
		switch r.ID() {
		case w3d.ChunkPivots:
			if header.NumPivots == 0 {
				break
			}
			records = make([]w3d.PivotRecord, header.NumPivots)
			if err := r.ReadStruct(records); err != nil {
				return nil, fmt.Errorf("hierarchy %s: failed to read pivots: %w", t.name, err)
			}
		case w3d.ChunkPivotFixups:
		default:
			log.Printf("[HTree] Skipping unknown chunk 0x%X in hierarchy %s", r.ID(), t.name)
		}
		if err := r.CloseChunk(); err != nil {
			return nil, fmt.Errorf("hierarchy %s: %w", t.name, err)
		}
	}
	if header.NumPivots > 0 && records == nil {
		return nil, fmt.Errorf("hierarchy %s: %w", t.name, errMissingPivots)
	}

	if pre30 {
		t.pivots = append(t.pivots, newPivot(DefaultRootName, noParent, mgl32.Vec3{}, mgl32.QuatIdent()))
	}
	for _, rec := range records {
		parent := noParent
		if rec.ParentIdx != w3d.NoParent {
			parent = int(int32(rec.ParentIdx))
		}
		if pre30 {
			parent++
		}
		t.pivots = append(t.pivots, newPivot(rec.Name.String(), parent,
			mgl32.Vec3(rec.Translation), common.QuatFromXYZW(rec.Rotation).Normalize()))
	}

	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("hierarchy %s: %w", t.name, err)
	}
	t.BaseUpdate(mgl32.Ident4())
	return t, nil
}

func (t *hTreeImpl) Save(w w3d.ChunkWriter) error {
	w.BeginChunk(w3d.ChunkHierarchy)

	header := w3d.HierarchyHeader{
		Version:   w3d.HierarchyVersion,
		Name:      w3d.MakeName(t.name),
		NumPivots: uint32(len(t.pivots)),
	}
	if err := w3d.WriteChunk(w, w3d.ChunkHierarchyHeader, &header); err != nil {
		return err
	}

	records := make([]w3d.PivotRecord, len(t.pivots))
	for i := range t.pivots {
		p := &t.pivots[i]
		parent := w3d.NoParent
		if p.parent != noParent {
			parent = uint32(p.parent)
		}
		records[i] = w3d.PivotRecord{
			Name:        w3d.MakeName(p.name),
			ParentIdx:   parent,
			Translation: p.baseTranslation(),
			Rotation:    common.QuatToXYZW(p.rotation),
		}
	}
	if err := w3d.WriteChunk(w, w3d.ChunkPivots, records); err != nil {
		return err
	}
	return w.EndChunk()
}

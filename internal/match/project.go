package match

import (
	"fmt"

	"github.com/roach88/magnolia/internal/bsonx"
)

// Projection is a validated field projection.
type Projection struct {
	include bool
	paths   []string
	keepID  bool
	empty   bool
}

// CompileProjection validates fields. Inclusion and exclusion cannot be
// mixed except for _id, which is included unless excluded explicitly.
func CompileProjection(fields map[string]any) (*Projection, error) {
	if len(fields) == 0 {
		return &Projection{empty: true, keepID: true}, nil
	}
	p := &Projection{keepID: true}
	var sawInclude, sawExclude bool
	for path, v := range fields {
		on := truthy(v)
		if path == bsonx.IDKey {
			p.keepID = on
			continue
		}
		if on {
			sawInclude = true
		} else {
			sawExclude = true
		}
		p.paths = append(p.paths, path)
	}
	if sawInclude && sawExclude {
		return nil, fmt.Errorf("projection cannot mix inclusion and exclusion")
	}
	// {_id: 1} on its own keeps only the identifier.
	p.include = sawInclude || (len(p.paths) == 0 && p.keepID)
	return p, nil
}

// Apply returns the projected copy of doc.
func (p *Projection) Apply(doc map[string]any) map[string]any {
	src, _ := bsonx.Normalize(doc).(map[string]any)
	if p.empty {
		return src
	}
	if !p.include {
		for _, path := range p.paths {
			Unset(src, path)
		}
		if !p.keepID {
			delete(src, bsonx.IDKey)
		}
		return src
	}
	out := map[string]any{}
	if id, ok := src[bsonx.IDKey]; ok && p.keepID {
		out[bsonx.IDKey] = id
	}
	for _, path := range p.paths {
		if v, ok := Get(src, path); ok {
			// Set only fails on non-document intermediates, which cannot
			// occur when copying out of a document.
			_ = Set(out, path, v)
		}
	}
	return out
}

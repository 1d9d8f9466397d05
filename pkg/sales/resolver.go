package sales

import (
	"fmt"
	"hash/fnv"

	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/salesmap/pkg/types"
)

// TemplateResolver picks the template a run uses. A template stored on the
// session wins over one supplied with the request, so the choice made at
// login stays put for the life of the session. Invalid candidates are
// skipped silently; the catalog default is the last resort.
type TemplateResolver struct {
	catalog *Catalog
}

func NewTemplateResolver(catalog *Catalog) *TemplateResolver {
	if catalog == nil {
		catalog = BuiltinCatalog()
	}
	return &TemplateResolver{catalog: catalog}
}

// Resolve returns the first valid candidate in precedence order
func (r *TemplateResolver) Resolve(sessionTemplate, requestTemplate *types.Template) *types.Template {
	return r.first(sessionTemplate, requestTemplate)
}

// ResolveProbe is Resolve with the request template first, so a candidate
// can be tried out without logging in again.
func (r *TemplateResolver) ResolveProbe(sessionTemplate, requestTemplate *types.Template) *types.Template {
	return r.first(requestTemplate, sessionTemplate)
}

func (r *TemplateResolver) first(candidates ...*types.Template) *types.Template {
	for _, t := range candidates {
		if t == nil {
			continue
		}
		if err := t.Validate(); err != nil {
			log.Debug().Err(err).Str("template_id", t.ID).Msg("skipping template candidate")
			continue
		}
		return t
	}
	return r.catalog.Default()
}

// FromParam decodes a template from a query or state parameter. The value may
// be a catalog id or a JSON template. Anything unusable yields nil.
func (r *TemplateResolver) FromParam(raw string) *types.Template {
	if raw == "" {
		return nil
	}
	if t, ok := r.catalog.Get(raw); ok {
		if t.Validate() != nil {
			return nil
		}
		return t
	}

	t, err := types.ParseTemplate(raw)
	if err != nil {
		log.Debug().Err(err).Msg("discarding request template")
		return nil
	}
	return t
}

// CacheID identifies t in result cache keys. Catalog templates use their id;
// edited or custom templates also carry a digest of their query and pattern
// so two different custom templates never share a cache entry.
func (r *TemplateResolver) CacheID(t *types.Template) string {
	if r.catalog.IsBuiltin(t) {
		return t.ID
	}

	h := fnv.New32a()
	h.Write([]byte(t.SubjectQuery))
	h.Write([]byte{0})
	h.Write([]byte(t.CountryPattern))
	return fmt.Sprintf("%s-%08x", t.ID, h.Sum32())
}

// Catalog returns the catalog backing the resolver
func (r *TemplateResolver) Catalog() *Catalog {
	return r.catalog
}

// Package regulatory provides the regulatory-extract-by-typology lookup
// injected into agent prompts during C4 step 2 ("regulatory extract
// selected by project.typology"). The underlying legal-article knowledge
// base is the out-of-scope external collaborator named in
// original_source/backend/routes/rag.py and articulos_legales_routes.py;
// this package owns only an in-process static table plus a TTL cache in
// front of it, grounded on the teacher's runbook cache pattern.
package regulatory

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/revisoria/poe-engine/pkg/model"
)

// Provider is the interface pkg/agentrun consumes.
type Provider interface {
	Extract(ctx context.Context, typology model.Typology) (string, error)
}

// staticExtracts holds the regulatory text block per typology. In a full
// deployment this table would be generated from the legal knowledge base;
// here it is the fixed content this engine ships, since the KB itself is
// external per §1.
var staticExtracts = map[model.Typology]string{
	model.TypologyConsulting:              "Art. 27 LISR fracc. I: deducciones estrictamente indispensables; servicios de consultoría requieren demostrar razón de negocios y materialidad.",
	model.TypologyIntragroupManagementFee: "Art. 179 LISR (partes relacionadas): estudio de precios de transferencia obligatorio; BEE cuantificable exigido para management fees intragrupo.",
	model.TypologySoftwareSaaS:            "Art. 27 LISR fracc. III: comprobantes fiscales y vigencia de licenciamiento; retención de ISR por uso o goce de software en su caso.",
	model.TypologyRestructuring:           "Art. 24/26-A CFF: reestructuras corporativas bajo escrutinio reforzado; documentar beneficio económico más allá del fiscal.",
	model.TypologyLogistics:               "Art. 27 LISR fracc. I y V: materialidad de transporte/almacenaje exige evidencia de ejecución (guías, bitácoras).",
	model.TypologyMarketing:               "Art. 27 LISR fracc. I: gastos de mercadotecnia requieren vinculación a actividad preponderante y métricas de retorno.",
	model.TypologyMaintenance:             "Art. 27 LISR fracc. I: mantenimiento requiere evidencia de ejecución (órdenes de trabajo, bitácoras, refacciones).",
	model.TypologyFinancialServices:       "Art. 27 LISR fracc. I y Art. 179 LISR si es parte relacionada: comisiones financieras bajo análisis de mercado.",
}

// CachedProvider wraps the static table in a go-cache TTL cache keyed by
// typology, so repeated calls for the same typology within a phase don't
// re-render the block.
type CachedProvider struct {
	cache *cache.Cache
}

// NewCachedProvider builds a provider whose entries expire after ttl and
// are swept every cleanupInterval.
func NewCachedProvider(ttl, cleanupInterval time.Duration) *CachedProvider {
	return &CachedProvider{cache: cache.New(ttl, cleanupInterval)}
}

// Extract returns the regulatory text block for typology, serving from
// cache when available.
func (p *CachedProvider) Extract(_ context.Context, typology model.Typology) (string, error) {
	key := string(typology)
	if cached, ok := p.cache.Get(key); ok {
		return cached.(string), nil
	}

	text, ok := staticExtracts[typology]
	if !ok {
		return "", fmt.Errorf("regulatory: no extract registered for typology %q", typology)
	}

	p.cache.SetDefault(key, text)
	return text, nil
}

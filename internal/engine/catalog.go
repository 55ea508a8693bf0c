package engine

import "github.com/pixforge/imagine-api/internal/domain"

// Metadata is the static descriptive data exposed by the engines catalog.
type Metadata struct {
	Engine       domain.Engine `json:"engine"`
	ThumbnailURL string        `json:"thumbnail_url"`
	Price        float64       `json:"price"`
}

var thumbnails = map[domain.Engine]string{
	domain.EngineMidjourney:   "https://media.pixforge.io/v1/f/engines/midjourney-icon.png",
	domain.EngineImagen:       "https://media.pixforge.io/v1/f/engines/imagen-icon.png",
	domain.EngineIdeogram:     "https://media.pixforge.io/v1/f/engines/ideogram-icon.png",
	domain.EngineFluxSchnell:  "https://media.pixforge.io/v1/f/engines/flux-schnell-icon.png",
	domain.EngineFlux11:       "https://media.pixforge.io/v1/f/engines/flux-1.1-icon.png",
	domain.EngineStability:    "https://media.pixforge.io/v1/f/engines/stability-icon.png",
	domain.EngineDalle:        "https://media.pixforge.io/v1/f/engines/dalle-icon.png",
	domain.EngineCjwbw:        "https://media.pixforge.io/v1/f/engines/cjwbw-icon.png",
	domain.EngineLucataco:     "https://media.pixforge.io/v1/f/engines/lucataco-icon.png",
	domain.EnginePollinations: "https://media.pixforge.io/v1/f/engines/pollinations-icon.png",
}

// Catalog returns the metadata for the text-to-image engines.
func Catalog() []Metadata {
	return describe(domain.ImagineEngines())
}

// BackgroundRemovalCatalog returns the metadata for the background-removal
// engines.
func BackgroundRemovalCatalog() []Metadata {
	return describe(domain.BackgroundRemovalEngines())
}

func describe(engines []domain.Engine) []Metadata {
	out := make([]Metadata, 0, len(engines))
	for _, e := range engines {
		out = append(out, Metadata{
			Engine:       e,
			ThumbnailURL: thumbnails[e],
			Price:        0.1,
		})
	}
	return out
}

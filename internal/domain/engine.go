package domain

// Engine identifies a generation backend. Each engine is driven by exactly one
// adapter implementation; the adapter registry lives in the engine package.
type Engine string

// Text-to-image engines
const (
	EngineMidjourney  Engine = "midjourney"
	EngineImagen      Engine = "imagen"
	EngineIdeogram    Engine = "ideogram"
	EngineFluxSchnell Engine = "flux_schnell"
	EngineFlux11      Engine = "flux_1.1"
	EngineStability   Engine = "stability"
	EngineDalle       Engine = "dalle"
)

// Background-removal engines, all served by the prediction API.
const (
	EngineCjwbw        Engine = "cjwbw"
	EngineLucataco     Engine = "lucataco"
	EnginePollinations Engine = "pollinations"
)

// ImagineEngines lists the engines usable for text-to-image tasks, in catalog
// order.
func ImagineEngines() []Engine {
	return []Engine{
		EngineMidjourney,
		EngineImagen,
		EngineIdeogram,
		EngineFluxSchnell,
		EngineFlux11,
		EngineStability,
		EngineDalle,
	}
}

// BackgroundRemovalEngines lists the engines usable for background-removal
// tasks.
func BackgroundRemovalEngines() []Engine {
	return []Engine{EngineCjwbw, EngineLucataco, EnginePollinations}
}

// IsValidEngine checks if the given engine is known, for either task kind.
func IsValidEngine(e Engine) bool {
	for _, known := range ImagineEngines() {
		if e == known {
			return true
		}
	}
	for _, known := range BackgroundRemovalEngines() {
		if e == known {
			return true
		}
	}
	return false
}

package model

// EngineType identifies an extraction strategy.
type EngineType string

const (
	EngineNativeText     EngineType = "native_text"
	EngineOCRFast        EngineType = "ocr_fast"
	EngineOCRHighQuality EngineType = "ocr_high_quality"
	EngineLLMVision      EngineType = "llm_vision"
)

// Tier ranks engines by expected extraction quality. Higher is better.
// Unknown engines rank below every known one so they can never displace
// a suggestion made by a recognized engine.
func (e EngineType) Tier() int {
	switch e {
	case EngineNativeText:
		return 1
	case EngineOCRFast:
		return 2
	case EngineOCRHighQuality:
		return 3
	case EngineLLMVision:
		return 4
	default:
		return 0
	}
}

// Valid reports whether e is a known engine.
func (e EngineType) Valid() bool {
	return e.Tier() > 0
}

// PatternType classifies the page region a pattern describes.
type PatternType string

const (
	PatternHeader    PatternType = "header"
	PatternFooter    PatternType = "footer"
	PatternTable     PatternType = "table"
	PatternTextBlock PatternType = "text_block"
	PatternImage     PatternType = "image"
	PatternSignature PatternType = "signature"
	PatternStamp     PatternType = "stamp"
	PatternUnknown   PatternType = "unknown"
)

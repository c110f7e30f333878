package client

type transcribeRequest struct {
	AudioB64 string `json:"audio_b64"`
	Language string `json:"language,omitempty"`
}

type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type TranscribeResponse struct {
	Text      string              `json:"text"`
	Segments  []TranscriptSegment `json:"segments"`
	Language  string              `json:"language"`
	LatencyMS float64             `json:"latency_ms"`
}

type embedTextRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type embedVisionRequest struct {
	ImageB64 string `json:"image_b64"`
}

type EmbedResponse struct {
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
	LatencyMS float64   `json:"latency_ms"`
}

type detectFacesRequest struct {
	ImageB64 string `json:"image_b64"`
}

type Face struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
	Landmarks  [][]float64 `json:"landmarks,omitempty"`
}

type DetectFacesResponse struct {
	Faces []Face `json:"faces"`
	Count int    `json:"count"`
}

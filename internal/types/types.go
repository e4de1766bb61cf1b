package types

// Transform is a PDF affine matrix [a b c d e f]; E (index 4) and F (index 5)
// are the horizontal and vertical translation used as an item's anchor.
type Transform [6]float64

func (t Transform) X() float64 { return t[4] }
func (t Transform) Y() float64 { return t[5] }

type ContentKind string

const (
	KindText  ContentKind = "text"
	KindImage ContentKind = "image"
)

// ContentItem is one text run or image region on a page.
type ContentItem struct {
	Kind        ContentKind `json:"type"`
	Text        string      `json:"text"`
	Anchor      Transform   `json:"transform"`
	Description *string     `json:"description,omitempty"` // image items that were enriched
	Usage       *int        `json:"tokenUsage,omitempty"`
}

type Page struct {
	Number int           `json:"pageNum"`
	Items  []ContentItem `json:"contents"`
}

// PageRange is an inclusive, 1-based page span.
type PageRange struct {
	Start int `json:"pageStart"`
	End   int `json:"pageEnd"`
}

// ExtractionResult is the outcome of the content-item path for one request.
type ExtractionResult struct {
	Pages      []Page `json:"pages"`
	Transcript string `json:"contents"`
	TotalUsage int    `json:"totalTokenUsage"`
}

// OCRResult is the outcome of the full-document OCR re-pass.
type OCRResult struct {
	Transcript string `json:"contents"`
	OutputPath string `json:"ocrFilePath"`
}

// ── Response payloads ────────────────────────────────────────────────────────

type FileInfo struct {
	OriginalName string `json:"originalName"`
	FilePath     string `json:"filePath"`
	OCRFilePath  string `json:"ocrFilePath,omitempty"`
}

type ExtractResponse struct {
	Status          string   `json:"status"`
	Msg             string   `json:"msg"`
	File            FileInfo `json:"file"`
	Contents        string   `json:"contents"`
	TotalTokenUsage *int     `json:"totalTokenUsage,omitempty"`
}

// StatusResponse is used for errors ("error") and bare acknowledgements.
type StatusResponse struct {
	Status string `json:"status"`
	Msg    string `json:"msg"`
}

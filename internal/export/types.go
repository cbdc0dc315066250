package export

const (
	FormatYAML = "yaml"
	FormatEDL  = "edl"
)

type ExportRequest struct {
	Format       string  `json:"format"`
	OutputDir    string  `json:"output_dir"`
	Title        string  `json:"title"`
	FrameRate    float64 `json:"frame_rate"`
	IncludeVideo bool    `json:"include_video"`
}

type ExportResponse struct {
	Status       string `json:"status"`
	Format       string `json:"format"`
	OutputPath   string `json:"output_path"`
	SegmentCount int    `json:"segment_count"`
	VideoPath    string `json:"video_path,omitempty"`
}

// Manifest is the YAML description of a timeline written next to an export.
type Manifest struct {
	Project       ManifestProject   `yaml:"project"`
	TotalDuration float64           `yaml:"total_duration"`
	Video         string            `yaml:"video,omitempty"`
	Segments      []ManifestSegment `yaml:"segments"`
}

type ManifestProject struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	Zoom float64 `yaml:"zoom"`
}

type ManifestSegment struct {
	Index          int     `yaml:"index"`
	ID             string  `yaml:"id"`
	Offset         float64 `yaml:"offset"`
	Duration       float64 `yaml:"duration"`
	Status         string  `yaml:"status"`
	Description    string  `yaml:"description,omitempty"`
	StartFrame     string  `yaml:"start_frame,omitempty"`
	EndFrame       string  `yaml:"end_frame,omitempty"`
	ReferenceImage string  `yaml:"reference_image,omitempty"`
}

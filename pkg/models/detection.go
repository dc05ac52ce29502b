package models

// BoundingBox is a normalised frame region, each coordinate in [0, 1].
type BoundingBox struct {
	Width  float64 `json:"Width"`
	Height float64 `json:"Height"`
	Left   float64 `json:"Left"`
	Top    float64 `json:"Top"`
}

// Instance is one located occurrence of a detected label.
type Instance struct {
	BoundingBox *BoundingBox `json:"BoundingBox,omitempty"`
	Confidence  float64      `json:"Confidence"`
}

// LabelDetection is a single raw label-detection result.
type LabelDetection struct {
	Timestamp  int64
	Name       string
	Confidence float64
	Instances  []Instance
}

// ModerationDetection is a single raw content-moderation result.
type ModerationDetection struct {
	Timestamp  int64
	Name       string
	ParentName string
	Confidence float64
}

// PersonDetection is one tracked person observed at a timestamp.
type PersonDetection struct {
	Timestamp int64
	Index     int64
}

// Detections holds the raw results fetched for one job. Only the slice for
// the job's kind is populated.
type Detections struct {
	Kind       JobKind
	Labels     []LabelDetection
	Moderation []ModerationDetection
	Persons    []PersonDetection
}

// Len returns the number of raw detections for the job's kind.
func (d Detections) Len() int {
	return len(d.Labels) + len(d.Moderation) + len(d.Persons)
}

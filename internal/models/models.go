package models

import "time"

// Kind identifies an upload slot on the assess form
type Kind string

const (
	KindText  Kind = "text_file"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Kinds lists the artifact kinds in processing order
var Kinds = []Kind{KindText, KindImage, KindVideo}

// Placeholder returns the stored name used when the client sends no filename
func (k Kind) Placeholder() string {
	switch k {
	case KindText:
		return "uploaded_text_file"
	case KindImage:
		return "uploaded_image_file"
	case KindVideo:
		return "uploaded_video_file"
	}
	return "uploaded_file"
}

// Verdict is the final classification of one artifact
type Verdict int

const (
	Safe Verdict = iota
	Unsafe
	Unreadable
)

// Label returns the string reported to clients
func (v Verdict) Label() string {
	switch v {
	case Safe:
		return "safe"
	case Unsafe:
		return "unsafe"
	case Unreadable:
		return "No readable text found."
	}
	return "unknown"
}

func (v Verdict) String() string {
	return v.Label()
}

// Likelihood is the analyzer's ordered confidence scale.
// Unknown sorts below VeryUnlikely.
type Likelihood int

const (
	Unknown Likelihood = iota
	VeryUnlikely
	Unlikely
	Possible
	Likely
	VeryLikely
)

func (l Likelihood) String() string {
	switch l {
	case VeryUnlikely:
		return "VERY_UNLIKELY"
	case Unlikely:
		return "UNLIKELY"
	case Possible:
		return "POSSIBLE"
	case Likely:
		return "LIKELY"
	case VeryLikely:
		return "VERY_LIKELY"
	}
	return "UNKNOWN"
}

// SafetyScore holds the three categories the image rule looks at
type SafetyScore struct {
	Adult    Likelihood `json:"adult"`
	Violence Likelihood `json:"violence"`
	Racy     Likelihood `json:"racy"`
}

// Artifact is one uploaded file spooled to request-scoped storage
type Artifact struct {
	Kind     Kind
	Filename string // sanitized base name
	Path     string // spooled copy, removed when the request ends
	Size     int64
}

// AssessmentRecord is one row in the audit log
type AssessmentRecord struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Filename  string    `json:"filename"`
	Verdict   string    `json:"verdict"`
	Digest    string    `json:"digest"`
	Size      int64     `json:"size"`
	Stored    bool      `json:"stored"`
	CreatedAt time.Time `json:"created_at"`
}

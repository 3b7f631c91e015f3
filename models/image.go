package models

import "strings"

// ImageSourceKind tells the resolver how an image reference has to be loaded.
type ImageSourceKind string

const (
	ImageSourceInline  ImageSourceKind = "inline"  // data: URL
	ImageSourceRemote  ImageSourceKind = "remote"  // http(s) URL
	ImageSourceLocal   ImageSourceKind = "local"   // path under the asset root
	ImageSourceInvalid ImageSourceKind = "invalid" // anything else
)

// ImageReference is a classified image string coming from the client.
// It is immutable once parsed.
type ImageReference struct {
	kind  ImageSourceKind
	value string
}

func ParseImageReference(value string) ImageReference {
	var kind ImageSourceKind
	switch {
	case strings.HasPrefix(value, "data:"):
		kind = ImageSourceInline
	case strings.HasPrefix(value, "http://"), strings.HasPrefix(value, "https://"):
		kind = ImageSourceRemote
	case strings.HasPrefix(value, "/"):
		kind = ImageSourceLocal
	default:
		kind = ImageSourceInvalid
	}
	return ImageReference{kind: kind, value: value}
}

func (r ImageReference) Kind() ImageSourceKind {
	return r.kind
}

func (r ImageReference) Value() string {
	return r.value
}

// String never prints inline payloads in full, they can be megabytes long.
func (r ImageReference) String() string {
	if r.kind == ImageSourceInline && len(r.value) > 48 {
		return r.value[:48] + "..."
	}
	return r.value
}

// ResolvedPayload is the binary content of one image, owned by the request
// that resolved it.
type ResolvedPayload struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
	Name     string `json:"name"`
}

func (p ResolvedPayload) Size() int {
	return len(p.Data)
}

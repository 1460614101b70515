package enums

import "strings"

type AttachmentKind string

const (
	AttachmentKindAll         AttachmentKind = "all"
	AttachmentKindImage       AttachmentKind = "image"
	AttachmentKindVideo       AttachmentKind = "video"
	AttachmentKindText        AttachmentKind = "text"
	AttachmentKindAudio       AttachmentKind = "audio"
	AttachmentKindApplication AttachmentKind = "application"
)

// AttachmentKinds is the set of mime main types a user allows to be stored inline.
type AttachmentKinds []AttachmentKind

func ParseAttachmentKinds(values []string) AttachmentKinds {
	kinds := make(AttachmentKinds, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		kinds = append(kinds, AttachmentKind(v))
	}
	return kinds
}

// Allows reports whether the kind is enabled, either directly or through "all".
func (k AttachmentKinds) Allows(kind AttachmentKind) bool {
	for _, v := range k {
		if v == AttachmentKindAll || v == kind {
			return true
		}
	}
	return false
}

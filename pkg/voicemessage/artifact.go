package voicemessage

import (
	"bytes"
	"time"

	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

const artifactFileNameBase = "voice_message"

// Artifact is a finished recording. It never changes after creation.
type Artifact struct {
	data      []byte
	mimeType  string
	createdAt time.Time
}

func NewArtifact(data []byte, mimeType string) *Artifact {
	return &Artifact{
		data:      bytes.Clone(data),
		mimeType:  mimeType,
		createdAt: time.Now(),
	}
}

func newArtifactFromFragments(
	fragments []Fragment,
	mimeType string,
	createdAt time.Time,
) *Artifact {
	size := 0
	for _, fragment := range fragments {
		size += len(fragment)
	}
	data := make([]byte, 0, size)
	for _, fragment := range fragments {
		data = append(data, fragment...)
	}
	return &Artifact{
		data:      data,
		mimeType:  mimeType,
		createdAt: createdAt,
	}
}

func (a *Artifact) Bytes() []byte {
	return bytes.Clone(a.data)
}

func (a *Artifact) Reader() *bytes.Reader {
	return bytes.NewReader(a.data)
}

func (a *Artifact) Len() int {
	return len(a.data)
}

func (a *Artifact) MIMEType() string {
	return a.mimeType
}

func (a *Artifact) CreatedAt() time.Time {
	return a.createdAt
}

// FileName is the name the recording is uploaded under, e.g. "voice_message.webm".
func (a *Artifact) FileName() string {
	return artifactFileNameBase + types.FileExtension(a.mimeType)
}

package transform

import "time"

// Blob is an immutable buffer of encoded image data. CreatedAt feeds the
// Last-Modified header of every response serving this blob.
type Blob struct {
	Data      []byte
	CreatedAt time.Time
}

func NewBlob(data []byte) *Blob {
	return &Blob{Data: data, CreatedAt: time.Now()}
}

func (b *Blob) Size() uint64 { return uint64(len(b.Data)) }

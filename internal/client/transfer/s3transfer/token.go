package s3transfer

import (
	"encoding/json"
	"fmt"
)

type part struct {
	Number int32  `json:"n"`
	ETag   string `json:"etag"`
	Size   int64  `json:"size"`
}

// resumeToken is what a paused or interrupted upload needs to continue.
type resumeToken struct {
	UploadID string `json:"upload_id"`
	PartSize int64  `json:"part_size"`
	Parts    []part `json:"parts"`
}

func (t resumeToken) encode() string {
	b, _ := json.Marshal(t)
	return string(b)
}

func decodeToken(s string) (resumeToken, error) {
	var t resumeToken
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return t, fmt.Errorf("decode resume token: %w", err)
	}
	if t.UploadID == "" {
		return t, fmt.Errorf("decode resume token: empty upload id")
	}
	return t, nil
}

func (t resumeToken) offset() int64 {
	var n int64
	for _, p := range t.Parts {
		n += p.Size
	}
	return n
}

// reconcile keeps the longest prefix of server-side parts that matches the
// layout implied by partSize and total. Anything after a gap is discarded
// and uploaded again.
func reconcile(server []part, partSize, total int64) []part {
	byNumber := make(map[int32]part, len(server))
	for _, p := range server {
		byNumber[p.Number] = p
	}

	var (
		kept   []part
		offset int64
	)
	for n := int32(1); offset < total; n++ {
		want := partSize
		if total-offset < want {
			want = total - offset
		}
		p, ok := byNumber[n]
		if !ok || p.Size != want {
			break
		}
		kept = append(kept, p)
		offset += want
	}
	return kept
}

package tasks

// Row is the stored projection of an upload task. Times are Unix
// nanoseconds, zero meaning unset. Context holds the JSON encoded context.
type Row struct {
	ID               string
	Seq              int64
	OwnerID          string
	TargetFolder     string
	GroupID          string
	RemotePath       string
	OriginalFileName string
	StoredName       string

	PayloadName        string
	PayloadContentType string
	PayloadModTime     int64
	PayloadSize        int64
	Payload            []byte
	PayloadChecksum    []byte

	BytesTransferred int64
	TotalBytes       int64
	State            string
	PauseReason      string
	LastError        string
	RetryCount       int
	Context          []byte
	ResumeToken      string
	Reference        string
	NeedsRouting     bool
	RouteAttempts    int

	CreatedAt      int64
	StartedAt      int64
	LastProgressAt int64
	CompletedAt    int64
}

// rowOverhead approximates the fixed per-row cost of integer columns.
const rowOverhead = 128

// Size estimates the encoded size of the row in bytes.
func (r *Row) Size() int64 {
	n := len(r.ID) + len(r.OwnerID) + len(r.TargetFolder) + len(r.GroupID) +
		len(r.RemotePath) + len(r.OriginalFileName) + len(r.StoredName) +
		len(r.PayloadName) + len(r.PayloadContentType) + len(r.Payload) +
		len(r.PayloadChecksum) + len(r.State) + len(r.PauseReason) +
		len(r.LastError) + len(r.Context) + len(r.ResumeToken) + len(r.Reference)
	return int64(n) + rowOverhead
}

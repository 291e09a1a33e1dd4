package status

const (
	OK             = iota // 0: Chunk or successful end of transfer
	FILEOPENFAILED        // 1: Requested file could not be opened
	READFAILED            // 2: File read failed mid-transfer
	INVALIDREQUEST        // 3: Request rejected by the dispatcher
)

// String returns readable name of status code
func String(code int32) string {
	switch code {
	case OK:
		return "ok"
	case FILEOPENFAILED:
		return "file open failed"
	case READFAILED:
		return "read failed"
	case INVALIDREQUEST:
		return "invalid request"
	default:
		return "unknown"
	}
}

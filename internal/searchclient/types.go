package searchclient

// Operation is a handle for an asynchronous import-into-store request.
type Operation struct {
	Name string `json:"name"`
	Done bool   `json:"done"`

	// Populated once Done is true.
	ResultDocID string `json:"resultDocId,omitempty"`
	ErrorMsg    string `json:"error,omitempty"`
}

// DocumentRef identifies one document within a remote store, as returned
// by ListStoreDocuments.
type DocumentRef struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	SizeBytes   int64  `json:"sizeBytes"`
	CreateTime  string `json:"createTime"`
	ExpireTime  string `json:"expireTime,omitempty"`
	UploadHash  string `json:"uploadHash,omitempty"`
}

type rawFileResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

type importRequest struct {
	RawFile string `json:"rawFile"`
}

type documentResponse struct {
	Name string `json:"name"`
}

type listDocumentsResponse struct {
	Documents     []DocumentRef `json:"documents"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}

type storeResponse struct {
	Name string `json:"name"`
}

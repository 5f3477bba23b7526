package dropbox

// Folder is a top-level category folder under the sync root
type Folder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// FileEntry is a file found somewhere below a folder
type FileEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// entry is one item of a list_folder page
type entry struct {
	Tag         string `json:".tag"` // "file", "folder" or "deleted"
	Name        string `json:"name"`
	PathLower   string `json:"path_lower"`
	PathDisplay string `json:"path_display"`
	Size        int64  `json:"size"`
}

// listFolderRequest is the body of files/list_folder
type listFolderRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

// listFolderContinueRequest is the body of files/list_folder/continue
type listFolderContinueRequest struct {
	Cursor string `json:"cursor"`
}

// listFolderResult is one page of a folder listing
type listFolderResult struct {
	Entries []entry `json:"entries"`
	Cursor  string  `json:"cursor"`
	HasMore bool    `json:"has_more"`
}

// downloadArg is the Dropbox-API-Arg payload of files/download
type downloadArg struct {
	Path string `json:"path"`
}

// apiErrorBody is the JSON error shape returned on 4xx/5xx
type apiErrorBody struct {
	ErrorSummary string `json:"error_summary"`
}

package entity

// ExtractResponse is the JSON body returned by POST /extract.
// DriveURL and Filename are set when Success is true, ErrorMessage otherwise.
type ExtractResponse struct {
	Success      bool    `json:"success"`
	DriveURL     *string `json:"drive_url"`
	Filename     *string `json:"filename"`
	ErrorMessage *string `json:"error_message"`
}

// ExtractSucceeded builds a success response.
func ExtractSucceeded(driveURL, filename string) ExtractResponse {
	return ExtractResponse{Success: true, DriveURL: &driveURL, Filename: &filename}
}

// ExtractFailed builds a failure response carrying a user-facing message.
func ExtractFailed(message string) ExtractResponse {
	return ExtractResponse{Success: false, ErrorMessage: &message}
}

// StrOrEmpty dereferences an optional response field.
func StrOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

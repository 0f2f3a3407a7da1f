package problem

type ErrorDetail struct {
	In       string `json:"in"`
	Location string `json:"location"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

// APIError implements error + Problem Details (RFC 7807)
type APIError struct {
	Title  string        `json:"title"`
	Status int           `json:"status"`
	Errors []ErrorDetail `json:"errors,omitempty"`
}

func (e APIError) Error() string { return e.Title }

func NewBadRequest(location, detail string) APIError {
	return APIError{
		Title:  "Request validation failed",
		Status: 400,
		Errors: details("body", location, "bad_request", detail),
	}
}

func NewNotFound(filename, detail string) APIError {
	return APIError{
		Title:  "Resource Not Found",
		Status: 404,
		Errors: details("path", filename, "not_found", detail),
	}
}

// NewUnsupportedMediaType rejects uploads that are not valid bundle
// archives: corrupt zips, missing descriptors, missing required keys.
func NewUnsupportedMediaType(detail string) APIError {
	return APIError{
		Title:  "Unsupported Media Type",
		Status: 415,
		Errors: details("body", "file", "invalid_bundle", detail),
	}
}

func NewInternalServerError(detail string) APIError {
	return APIError{
		Title:  "Internal Server Error",
		Status: 500,
		Errors: details("", "", "internal_error", detail),
	}
}

func details(in, location, code, detail string) []ErrorDetail {
	if detail == "" {
		return nil
	}
	return []ErrorDetail{{
		In:       in,
		Location: location,
		Code:     code,
		Detail:   detail,
	}}
}

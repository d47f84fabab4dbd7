package response

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`         // "success" or "error"
	StatusCode int         `json:"status_code"`    // HTTP status code
	Code       string      `json:"code,omitempty"` // machine-readable error kind
	Data       interface{} `json:"data,omitempty"`
	Meta       *Meta       `json:"meta,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Meta carries pagination details for list responses
type Meta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// SuccessWithPagination wraps a page of data together with its pagination meta
func SuccessWithPagination(statusCode int, data interface{}, page, limit int, total int64) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
		Meta:       &Meta{Page: page, Limit: limit, Total: total},
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// ErrorWithCode is Error plus a machine-readable code the client can switch on
func ErrorWithCode(statusCode int, code, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Code:       code,
		Error:      err,
	}
}

package loki

// pushRequest is the JSON payload accepted by the Loki push API.
type pushRequest struct {
	Streams []stream `json:"streams"`
}

type stream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

// line is a single structured log line before it is batched.
type line struct {
	Level   string         `json:"level"`
	Time    int64          `json:"ts"`
	Message string         `json:"msg"`
	Caller  string         `json:"caller,omitempty"`
	Stack   string         `json:"stacktrace,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

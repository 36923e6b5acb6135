package judge0

// Submission is one test-case execution request sent to the judge. SourceCode
// is plain text and gets base64 encoded by the client; Stdin and ExpectedOutput
// are already base64, the format test-case payloads are stored in.
type Submission struct {
	SourceCode     string `json:"source_code"`
	LanguageID     int64  `json:"language_id"`
	Stdin          string `json:"stdin"`
	ExpectedOutput string `json:"expected_output"`
}

// Status carries the judge's verdict description for one submission.
type Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Result is the polled outcome for one submitted test case. Output streams are
// base64 encoded, matching the base64_encoded=true request mode.
type Result struct {
	Token         string `json:"token"`
	Status        Status `json:"status"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	Message       string `json:"message"`
	Time          string `json:"time"`
	Memory        int64  `json:"memory"`
}

// Language is one language entry from the judge's catalog.
type Language struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type batchSubmitRequest struct {
	Submissions []Submission `json:"submissions"`
}

type batchTokenResponse struct {
	Token string `json:"token"`
}

type batchResultResponse struct {
	Submissions []Result `json:"submissions"`
}

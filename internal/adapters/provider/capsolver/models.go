package capsolver

// TaskType is the proxyless Turnstile task
const TaskType = "AntiTurnstileTaskProxyLess"

// Task statuses reported by getTaskResult
const (
	StatusIdle       = "idle"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

type createTaskRequest struct {
	ClientKey string `json:"clientKey"`
	Task      task   `json:"task"`
}

type task struct {
	Type       string    `json:"type"`
	WebsiteURL string    `json:"websiteURL"`
	WebsiteKey string    `json:"websiteKey"`
	Metadata   *metadata `json:"metadata,omitempty"`
}

type metadata struct {
	Action string `json:"action,omitempty"`
	CData  string `json:"cdata,omitempty"`
}

// apiError is embedded in every response; ErrorID != 0 means the call was refused
type apiError struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode,omitempty"`
	ErrorDescription string `json:"errorDescription,omitempty"`
}

type createTaskResponse struct {
	apiError
	TaskID string `json:"taskId"`
}

type getTaskResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    string `json:"taskId"`
}

type getTaskResultResponse struct {
	apiError
	Status   string   `json:"status"`
	Solution solution `json:"solution"`
}

type solution struct {
	Token     string `json:"token"`
	UserAgent string `json:"userAgent,omitempty"`
}

func (e apiError) failed() bool { return e.ErrorID != 0 }

func (e apiError) message() string {
	if e.ErrorDescription != "" {
		return e.ErrorCode + ": " + e.ErrorDescription
	}
	return e.ErrorCode
}

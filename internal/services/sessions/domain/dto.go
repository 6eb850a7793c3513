package domain

// CreateInput asks for a new relay session
type CreateInput struct {
	Sitekey string `json:"sitekey" validate:"required,min=10,max=128,keychars" example:"0x4AAAAAAABkMYinukE8nzYS"`
	URL     string `json:"url" validate:"required,url,max=2048" example:"https://example.com/login"`
	Action  string `json:"action,omitempty" validate:"omitempty,max=64" example:"login"`
	CData   string `json:"cdata,omitempty" validate:"omitempty,max=255" example:"sess-42"`
}

// Created is returned after a session is allocated
type Created struct {
	SessionID string `json:"session_id" example:"8b0d5a5e-5c1e-4df5-8a5c-6f0c7c3d0b7a"`
	SolveURL  string `json:"solve_url" example:"http://localhost:8888/solve?session=8b0d5a5e-5c1e-4df5-8a5c-6f0c7c3d0b7a"`
	Status    Status `json:"status" example:"pending"`
	ExpiresAt string `json:"expires_at" example:"2025-09-03T13:02:00Z"`
}

// TokenInput is posted by the widget page once the challenge yields a token
type TokenInput struct {
	SessionID string `json:"sessionId" validate:"required,max=64,keychars" example:"8b0d5a5e-5c1e-4df5-8a5c-6f0c7c3d0b7a"`
	Token     string `json:"token" validate:"required,max=4096" example:"0.zrSnRHO7h0HwSjSCU8oyzbjEtD8p"`
	Timestamp int64  `json:"timestamp,omitempty" example:"1725368520000"`
}

// StatusView is the public status of a session; Token is set only once completed
type StatusView struct {
	SessionID string `json:"session_id" example:"8b0d5a5e-5c1e-4df5-8a5c-6f0c7c3d0b7a"`
	Status    Status `json:"status" example:"completed"`
	Token     string `json:"token,omitempty" example:"0.zrSnRHO7h0HwSjSCU8oyzbjEtD8p"`
	Sitekey   string `json:"sitekey" example:"0x4AAAAAAABkMYinukE8nzYS"`
	URL       string `json:"url" example:"https://example.com/login"`
	CreatedAt string `json:"created_at" example:"2025-09-03T13:00:00Z"`
	ExpiresAt string `json:"expires_at" example:"2025-09-03T13:02:00Z"`
}

// Accepted acknowledges a token submission
type Accepted struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message" example:"token received"`
}

// Liveness is the root diagnostic payload
type Liveness struct {
	Service        string   `json:"service" example:"turnstiled"`
	ActiveSessions int      `json:"active_sessions" example:"3"`
	Routes         []string `json:"routes"`
}

package model

type CreateSessionRequest struct {
	Title string `json:"title"`
}

type AddMessageRequest struct {
	SessionID   string   `json:"session_id" binding:"required"`
	Role        string   `json:"role" binding:"required"`
	Name        string   `json:"name"`
	Content     string   `json:"content"`
	HTMLContent string   `json:"html_content"`
	IsSystem    bool     `json:"is_system"`
	Swipes      []string `json:"swipes"`
}

// 渲染更新请求
type RenderUpdateRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	HTMLContent string `json:"html_content" binding:"required"`
	RenderTime  int64  `json:"render_time_ms"`
}

// 批量渲染更新请求
type BatchRenderRequest struct {
	Renders []RenderUpdate `json:"renders" binding:"required"`
}

type RenderUpdate struct {
	MessageID   string `json:"message_id" binding:"required"`
	HTMLContent string `json:"html_content" binding:"required"`
	RenderTime  int64  `json:"render_time_ms"`
}

type EditMessageRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	Content     string `json:"content"`
	HTMLContent string `json:"html_content"`
}

type SwipeRequest struct {
	SessionID   string `json:"session_id" binding:"required"`
	SwipeID     int    `json:"swipe_id"`
	HTMLContent string `json:"html_content"`
}

type WorkflowsRequest struct {
	Workflows []string `json:"workflows"`
}

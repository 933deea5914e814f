package dto

// PostMessageRequest: HTTP fallback for submitting a chat message when the
// socket is unavailable
type PostMessageRequest struct {
	RoomID  string `json:"roomId" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// OnlineUserResponse: one currently connected user, shaped for the page layer
type OnlineUserResponse struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FullName     string `json:"fullName"`
	ProfileImage string `json:"profileImage"`
	IsAdmin      bool   `json:"isAdmin"`
	IsModerator  bool   `json:"isModerator"`
}

package group

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description"`
}

// AddMemberRequest represents the request to add a user to a group
type AddMemberRequest struct {
	UserID int64 `json:"user_id" validate:"required"`
}

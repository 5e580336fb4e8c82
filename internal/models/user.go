package models

// UserProfile is the public view of a user owned by the user service.
type UserProfile struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UnknownUser is shown in place of a profile the user service could not
// return.
func UnknownUser(id int) UserProfile {
	return UserProfile{ID: id, Name: "Unknown User", Email: "Unknown"}
}

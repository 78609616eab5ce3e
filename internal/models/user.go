package models

type User struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	Email          string `json:"email,omitempty"`
	Account        string `json:"account"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

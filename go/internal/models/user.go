package models

// User is the Spotify profile of whoever issued a party's access token.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Country     string `json:"country,omitempty"`
	Product     string `json:"product,omitempty"`
}

// Name returns the display name, falling back to the Spotify user id.
func (u User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}

package models

// Profile is a named credential pair. Its persisted browser state lives in
// the session directory of the same name.
type Profile struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Credentials is the stored form of a profile, keyed by name in the
// profiles document.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateProfileRequest is the payload for POST /profiles
type CreateProfileRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

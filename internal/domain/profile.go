package domain

// DefaultFullName is shown until the user saves a profile.
const DefaultFullName = "Novo Usuário"

// UserProfile 是每个身份唯一的个人资料，保存时整体覆盖。
type UserProfile struct {
	FullName    string `json:"fullName"`
	Email       string `json:"email"`
	LinkedinURL string `json:"linkedinUrl"`
	Bio         string `json:"bio"`
	Experience  string `json:"experience"`
	Skills      string `json:"skills"`
}

// DefaultProfile is surfaced, never written, when no profile is stored.
func DefaultProfile() UserProfile {
	return UserProfile{FullName: DefaultFullName}
}

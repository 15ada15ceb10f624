package dto

type RefreshInput struct {
	RefreshToken string `json:"refreshToken"`
	IPAddress    string `json:"-"`
	UserAgent    string `json:"-"`
	Fingerprint  string `json:"-"`
}

type LogoutInput struct {
	RefreshToken string `json:"refreshToken"`
}

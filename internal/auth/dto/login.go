package dto

type LoginInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	RememberMe  bool   `json:"rememberMe,omitempty"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
	Fingerprint string `json:"-"`
}

type VerifyCodeInput struct {
	Email     string `json:"email"`
	Code      string `json:"code"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

type VerifyCodeOutput struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

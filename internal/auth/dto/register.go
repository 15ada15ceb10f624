package dto

type RegisterInput struct {
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Password    string `json:"password"`
	Phone       string `json:"phone,omitempty"`
	CompanyBIN  string `json:"companyBin,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	Industry    string `json:"industry,omitempty"`
}

type RegisterOutput struct {
	User              UserOutput `json:"user"`
	Message           string     `json:"message"`
	NeedsVerification bool       `json:"needsVerification"`
}

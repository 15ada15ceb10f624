package constant

const (
	DefaultTokenType = "Bearer"

	VerificationCodeLength = 6
	DefaultLocale          = "ru"

	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"

	RevokeReasonLogout       = "logout"
	RevokeReasonRotated      = "rotated"
	RevokeReasonUserInactive = "user_inactive"
	RevokeReasonForceLogout  = "force_logout"
)

package user

type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	Avatar    string `json:"avatar,omitempty"`
	PushToken string `json:"-"`
}

type CredentialsRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          int64  `json:"id"`
	Username    string `json:"username"`
}

type PushTokenRequest struct {
	Token string `json:"token" validate:"required,max=255"`
}

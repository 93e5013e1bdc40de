// Package oauth реализует вход через Google (authorization code flow).
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// ErrEmailNotVerified - Google не подтвердил email пользователя.
var ErrEmailNotVerified = errors.New("oauth: google email is not verified")

// GoogleUser - данные профиля Google, нужные для создания профиля.
type GoogleUser struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleProvider выпускает ссылку авторизации и обменивает код на профиль.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogleProvider создаёт провайдера с данными OAuth-клиента.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: userInfoURL,
	}
}

// NewState генерирует случайное значение параметра state.
func NewState() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("oauth: state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// AuthURL возвращает адрес страницы согласия Google.
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange обменивает код авторизации на профиль пользователя.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*GoogleUser, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("oauth: exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("oauth: userinfo request: %w", err)
	}

	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth: userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauth: userinfo status %d", resp.StatusCode)
	}

	var user GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("oauth: decode userinfo: %w", err)
	}
	if user.Email == "" || !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	return &user, nil
}

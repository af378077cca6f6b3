package docapi

import (
	"github.com/golang-jwt/jwt/v5"
)

// serviceToken はサービス情報API向けのベアラートークンを発行する。
// iss にクライアントID、iat に現在時刻を入れ、クライアントシークレットでHS256署名する。
func (c *Client) serviceToken() (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:   c.config.ClientID,
		IssuedAt: jwt.NewNumericDate(c.now()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.config.ClientSecret))
}

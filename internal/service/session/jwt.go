package session

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	SessionId string `json:"session_id"`
	AccountId string `json:"account_id"`
}

func (s *service) generateAuthToken(sessionId, accountId string) (string, error) {
	claims := jwt.MapClaims{
		"session_id": sessionId,
		"account_id": accountId,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(s.secret))
}

// ParseAuthToken validates an auth token handed out on join and returns its
// claims. Used by the transport layer to reattach a reconnecting client.
func (s *service) ParseAuthToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.secret), nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token")
	}

	sessionId, _ := claims["session_id"].(string)
	accountId, _ := claims["account_id"].(string)
	if sessionId == "" || accountId == "" {
		return nil, errors.New("invalid token")
	}

	return &Claims{
		SessionId: sessionId,
		AccountId: accountId,
	}, nil
}

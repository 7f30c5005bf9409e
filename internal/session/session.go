// Package session holds the credentials one login produces. The engine,
// transport and fetch client are all built from a single Session and die
// with it.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSession = errors.New("invalid session")

type Session struct {
	UserID   int64
	Username string
	Secret   string
}

func New(userID int64, username, secret string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || secret == "" {
		return Session{}, fmt.Errorf("%w: username and secret are required", ErrInvalidSession)
	}
	return Session{UserID: userID, Username: username, Secret: secret}, nil
}

// FromToken builds a Session from an access token issued by the chat
// service. The signature is not checked here: the service verifies the
// token on every call, the client only needs the identity claims.
func FromToken(token string) (Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	userID, err := claimUserID(claims["user_id"])
	if err != nil {
		return Session{}, err
	}

	username, _ := claims["username"].(string)
	return New(userID, username, token)
}

func claimUserID(v interface{}) (int64, error) {
	switch id := v.(type) {
	case float64:
		return int64(id), nil
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid user ID in token", ErrInvalidSession)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: invalid user ID in token", ErrInvalidSession)
	}
}

// PrivateRoomNames lists the names a direct room between the two users may
// carry; the service does not fix the order.
func (s Session) PrivateRoomNames(other string) [2]string {
	return [2]string{s.Username + "-" + other, other + "-" + s.Username}
}

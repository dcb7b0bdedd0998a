package auth

import (
	"errors"
	"fmt"
	"time"

	"trpgserver/models"

	jwt "github.com/dgrijalva/jwt-go"
)

// JwtKey はトークンの署名と検証に使う鍵です。起動時にSetKeyで設定します。
var JwtKey = []byte("change-me")

// SetKey replaces the signing key. Empty keys are ignored.
func SetKey(secret string) {
	if secret != "" {
		JwtKey = []byte(secret)
	}
}

// ParseToken はトークンを検証し、クレームを返します。HMAC以外の署名方式は拒否します。
func ParseToken(tokenString string) (*models.MyClaims, error) {
	claims := &models.MyClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return JwtKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no userid")
	}
	return claims, nil
}

// IsValidToken reports whether tokenString is a valid token.
func IsValidToken(tokenString string) (bool, error) {
	if _, err := ParseToken(tokenString); err != nil {
		return false, err
	}
	return true, nil
}

// GenerateToken はユーザーIDのトークンを発行します。
func GenerateToken(userID string, ttl time.Duration) (string, error) {
	claims := &models.MyClaims{
		UserID: userID,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(ttl).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(JwtKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

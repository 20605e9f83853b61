package model

import "github.com/golang-jwt/jwt"

// RoleAdmin may distribute to the official accounts and read any content's records.
const RoleAdmin = "admin"

type UserClaims struct {
	jwt.StandardClaims
	UserName string `json:"user_name"`
	Role     string `json:"role,omitempty"`
}

func (c UserClaims) IsAdmin() bool { return c.Role == RoleAdmin }

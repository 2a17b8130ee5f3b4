package models

import "github.com/golang-jwt/jwt/v5"

// UserRole enumerates roles carried in access tokens.
type UserRole string

// RoleAdmin may delete uploads and browse the student directory.
const RoleAdmin UserRole = "ADMIN"

// JWTClaims represents the JWT payload used for authentication.
type JWTClaims struct {
	Username string   `json:"username"`
	Role     UserRole `json:"role"`
	jwt.RegisteredClaims
}

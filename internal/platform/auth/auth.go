// Package auth はオペレーターのアクセストークンを検証し、認証済みの主体をコンテキストで受け渡します。
// ログイン画面とトークンの発行元は外部にあり、このサービスは HS256 の署名を検証するだけです。
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role はオペレーターの権限です。
type Role string

const (
	RoleUsher Role = "usher"
	RoleAdmin Role = "admin"
)

// IsValid は既知の権限かどうかを返します。
func (r Role) IsValid() bool {
	return r == RoleUsher || r == RoleAdmin
}

var (
	// ErrInvalidToken はトークンの形式・署名・有効期限のいずれかが不正な場合に返却されます。
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrForbidden は主体に必要な権限がない場合に返却されます。
	ErrForbidden = errors.New("auth: forbidden")
)

// Principal は認証済みのオペレーターです。
type Principal struct {
	ID   string
	Role Role
}

// Claims はアクセストークンのクレームです。
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Verifier はアクセストークンを検証します。
type Verifier struct {
	secret []byte
	issuer string
}

// NewVerifier は Verifier を生成します。issuer が空の場合は iss を検証しません。
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify はトークン文字列を検証し、主体を返します。
func (v *Verifier) Verify(token string) (*Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" || !claims.Role.IsValid() {
		return nil, ErrInvalidToken
	}
	return &Principal{ID: subject, Role: claims.Role}, nil
}

// Issue は主体のトークンを署名します。発行は外部の役割ですが、検証ツールとテストで利用します。
func Issue(secret, issuer string, p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type principalKey struct{}

// WithPrincipal は主体をコンテキストに格納します。
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext はコンテキストの主体を返します。未認証の呼び出しでは false を返します。
func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// OperatorID は記録に帰属させるオペレーター ID を返します。未認証なら nil です。
func OperatorID(ctx context.Context) *string {
	p, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	id := p.ID
	return &id
}

// RequireRole は主体が role を持つことを確認します。
func RequireRole(ctx context.Context, role Role) error {
	p, ok := FromContext(ctx)
	if !ok || p.Role != role {
		return ErrForbidden
	}
	return nil
}

package auth

import (
	"testing"
	"time"

	"github.com/hitoshi/eventgate/internal/model"
)

// TestTokenIssuer_IssueAndValidate は発行直後の検証で発行ユーザーの
// クレームが返ることを検証する。
func TestTokenIssuer_IssueAndValidate(t *testing.T) {
	issuer := testIssuer()
	user := &model.User{
		ID:    "user-1",
		Email: "taro@example.com",
		Role:  model.RoleOrganizer,
	}

	tokens, refreshHash, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if tokens.AccessToken == "" {
		t.Fatal("expected non-empty access token")
	}
	if refreshHash != HashRefreshToken(tokens.RefreshToken) {
		t.Error("refresh hash does not match the raw refresh token")
	}

	claims, err := issuer.Validate(tokens.AccessToken)
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if claims.UserID != user.ID {
		t.Errorf("UserID = %q, want %q", claims.UserID, user.ID)
	}
	if claims.Email != user.Email {
		t.Errorf("Email = %q, want %q", claims.Email, user.Email)
	}
	if claims.Role != user.Role {
		t.Errorf("Role = %q, want %q", claims.Role, user.Role)
	}
}

// TestTokenIssuer_Validate_Expired は期限切れトークンがErrTokenExpiredに
// なることを検証する。時刻は注入して進める。
func TestTokenIssuer_Validate_Expired(t *testing.T) {
	issuer := testIssuer()
	issued := time.Now()
	issuer.now = func() time.Time { return issued }

	tokens, _, err := issuer.Issue(&model.User{ID: "user-1", Email: "a@example.com", Role: model.RoleParticipant})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	// 有効期限の直後まで時計を進める
	issuer.now = func() time.Time { return issued.Add(time.Hour + time.Minute) }

	_, err = issuer.Validate(tokens.AccessToken)
	if err != ErrTokenExpired {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

// TestTokenIssuer_Validate_WrongSecret は別の鍵で署名されたトークンの
// 拒否を検証する。
func TestTokenIssuer_Validate_WrongSecret(t *testing.T) {
	other := NewTokenIssuer(IssuerConfig{
		Secret:          []byte("another-secret-another-secret-32"),
		Issuer:          "eventgate-test",
		Audience:        "eventgate-test-api",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	tokens, _, err := other.Issue(&model.User{ID: "user-1", Email: "a@example.com", Role: model.RoleParticipant})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	_, err = testIssuer().Validate(tokens.AccessToken)
	if err != ErrTokenInvalid {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

// TestTokenIssuer_Validate_WrongIssuerAndAudience は発行者・対象者の
// 不一致が拒否されることを検証する。
func TestTokenIssuer_Validate_WrongIssuerAndAudience(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	mismatched := NewTokenIssuer(IssuerConfig{
		Secret:          secret,
		Issuer:          "someone-else",
		Audience:        "other-api",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	tokens, _, err := mismatched.Issue(&model.User{ID: "user-1", Email: "a@example.com", Role: model.RoleParticipant})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	// 同じ鍵だが発行者・対象者が異なる
	_, err = testIssuer().Validate(tokens.AccessToken)
	if err != ErrTokenInvalid {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

// TestTokenIssuer_Validate_Malformed は構造不正なトークンの拒否を検証する。
func TestTokenIssuer_Validate_Malformed(t *testing.T) {
	issuer := testIssuer()

	for _, tokenString := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := issuer.Validate(tokenString); err != ErrTokenInvalid {
			t.Errorf("Validate(%q) = %v, want ErrTokenInvalid", tokenString, err)
		}
	}
}

// TestGenerateRefreshToken はリフレッシュトークンの一意性とハッシュの
// 対応を検証する。
func TestGenerateRefreshToken(t *testing.T) {
	first, firstHash, err := generateRefreshToken()
	if err != nil {
		t.Fatalf("generateRefreshToken returned error: %v", err)
	}
	second, _, err := generateRefreshToken()
	if err != nil {
		t.Fatalf("generateRefreshToken returned error: %v", err)
	}

	if first == second {
		t.Error("expected unique refresh tokens")
	}
	if firstHash != HashRefreshToken(first) {
		t.Error("hash does not correspond to the raw token")
	}
	if firstHash == first {
		t.Error("stored hash must differ from the raw token")
	}
}

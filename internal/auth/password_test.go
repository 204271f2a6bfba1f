package auth

import (
	"strings"
	"testing"
)

// testHasher はテスト用の低コストパラメータのハッシャーを返す。
func testHasher() *Argon2Hasher {
	return &Argon2Hasher{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// TestArgon2Hasher_HashAndVerify はハッシュ化と検証の往復を検証する。
func TestArgon2Hasher_HashAndVerify(t *testing.T) {
	h := testHasher()

	encoded, err := h.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=") {
		t.Errorf("encoded hash has unexpected format: %q", encoded)
	}
	if strings.Contains(encoded, "correct-password") {
		t.Error("encoded hash must not contain the plaintext password")
	}

	ok, err := h.Verify("correct-password", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Error("expected correct password to verify")
	}

	ok, err = h.Verify("wrong-password", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Error("expected wrong password to fail verification")
	}
}

// TestArgon2Hasher_HashesAreSalted は同一パスワードでもハッシュが
// 毎回異なることを検証する。
func TestArgon2Hasher_HashesAreSalted(t *testing.T) {
	h := testHasher()

	first, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	second, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}
	if first == second {
		t.Error("expected different hashes for the same password (random salt)")
	}
}

// TestArgon2Hasher_VerifyUsesEmbeddedParams はハッシュに埋め込まれた
// パラメータで検証されることを検証する。パラメータを変更しても
// 既存ハッシュの検証が壊れない。
func TestArgon2Hasher_VerifyUsesEmbeddedParams(t *testing.T) {
	old := testHasher()
	encoded, err := old.Hash("password123")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	// パラメータ変更後のハッシャーでも旧ハッシュを検証できる
	current := &Argon2Hasher{
		Memory:      16 * 1024,
		Iterations:  2,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
	ok, err := current.Verify("password123", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Error("expected verification with embedded parameters to succeed")
	}
}

// TestArgon2Hasher_Verify_MalformedHash は壊れたハッシュ文字列の扱いを検証する。
func TestArgon2Hasher_Verify_MalformedHash(t *testing.T) {
	h := testHasher()

	tests := []struct {
		name    string
		encoded string
	}{
		{"空文字列", ""},
		{"区切り不足", "$argon2id$v=19"},
		{"未対応アルゴリズム", "$bcrypt$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA"},
		{"不正なソルト", "$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.Verify("password", tt.encoded); err == nil {
				t.Error("expected error for malformed hash")
			}
		})
	}
}

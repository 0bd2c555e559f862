package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

// CredentialHasher はパスワードハッシュ計算のインターフェース。
// ハッシュは決定的で、ユーザーIDをソルトとして使用する。
// 決定的であることで、認証時は保存済みハッシュとの単純比較で済む。
type CredentialHasher interface {
	// Hash は平文パスワードからハッシュ文字列を計算する。
	Hash(userID, plaintext string) string

	// Verify は平文パスワードが保存済みハッシュと一致するかを検証する。
	// 比較は一定時間で行う。
	Verify(userID, plaintext, storedHash string) bool
}

// pbkdf2Iterations はPBKDF2の反復回数。
const pbkdf2Iterations = 60000

// pbkdf2KeyLength は導出鍵のバイト長。
const pbkdf2KeyLength = 32

// PBKDF2Hasher はPBKDF2-SHA256によるCredentialHasherの実装。
type PBKDF2Hasher struct{}

// NewPBKDF2Hasher はPBKDF2Hasherを生成する。
func NewPBKDF2Hasher() *PBKDF2Hasher {
	return &PBKDF2Hasher{}
}

// Hash は平文パスワードからハッシュ文字列を計算する。
// ソルトはユーザーIDなので、同じ(userID, plaintext)の組は常に同じ値になる。
func (h *PBKDF2Hasher) Hash(userID, plaintext string) string {
	key := pbkdf2.Key([]byte(plaintext), []byte(userID), pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return hex.EncodeToString(key)
}

// Verify は平文パスワードが保存済みハッシュと一致するかを一定時間比較で検証する。
func (h *PBKDF2Hasher) Verify(userID, plaintext, storedHash string) bool {
	computed := h.Hash(userID, plaintext)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// compile-time interface check
var _ CredentialHasher = (*PBKDF2Hasher)(nil)

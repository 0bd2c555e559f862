// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashは自動プロビジョニングされたアカウントではnil。
// Verificationはメール確認待ちの間だけ非nilで、Verifiedと排他。
type User struct {
	ID            string
	Email         string
	PasswordHash  *string
	Verified      bool
	Verification  *string
	WatermarkHigh *time.Time
	WatermarkLow  *time.Time
	NarrowMode    bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

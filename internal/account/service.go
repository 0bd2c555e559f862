// Package account はサインアップから削除までのアカウントライフサイクルを扱う。
package account

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feedsync/internal/mail"
	"github.com/hitoshi/feedsync/internal/model"
	"github.com/hitoshi/feedsync/internal/notify"
	"github.com/hitoshi/feedsync/internal/repository"
	"github.com/hitoshi/feedsync/internal/security"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

const minPasswordLength = 6

// SubscriberCounter はアカウント削除時に購読者数を減算するための操作。
type SubscriberCounter interface {
	DecrementSubscribers(ctx context.Context, channelID string) error
}

// DefaultSubscriber は新規ユーザーへ初期購読セットを付与する。
type DefaultSubscriber interface {
	CreateDefaults(ctx context.Context, userID string) error
}

// Service はアカウントライフサイクルのワークフローを統括する。
// 各ワークフローは逐次実行され、最初のエラーで中断する。
type Service struct {
	userRepo         repository.UserRepository
	sessionRepo      repository.SessionRepository
	subscriptionRepo repository.SubscriptionRepository
	counter          SubscriberCounter
	hasher           security.CredentialHasher
	mailer           mail.Mailer
	notifier         notify.Notifier
	defaults         DefaultSubscriber
	baseURL          string
	sessionMaxAge    time.Duration
	logger           *slog.Logger
}

// NewService はServiceを生成する。defaultsはnil可（初期購読なし）。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	subscriptionRepo repository.SubscriptionRepository,
	counter SubscriberCounter,
	hasher security.CredentialHasher,
	mailer mail.Mailer,
	notifier notify.Notifier,
	defaults DefaultSubscriber,
	baseURL string,
	sessionMaxAge time.Duration,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo:         userRepo,
		sessionRepo:      sessionRepo,
		subscriptionRepo: subscriptionRepo,
		counter:          counter,
		hasher:           hasher,
		mailer:           mailer,
		notifier:         notifier,
		defaults:         defaults,
		baseURL:          baseURL,
		sessionMaxAge:    sessionMaxAge,
		logger:           logger,
	}
}

// Signup は新規アカウントを作成する。検証は定義順に評価され、最初に
// 失敗したルールのメッセージだけを返す。成功時は verified=false の
// ユーザーと本人確認トークンを作成し、確認メールを送信する。
func (s *Service) Signup(ctx context.Context, email, password, passwordConfirm string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if !emailPattern.MatchString(email) {
		return nil, model.NewValidationError("E-mail address is invalid.")
	}
	if password == "" {
		return nil, model.NewValidationError("Password is required.")
	}
	if len(password) < minPasswordLength {
		return nil, model.NewValidationError("Password must be at least 6 characters.")
	}
	if password != passwordConfirm {
		return nil, model.NewValidationError("Password confirmation does not match.")
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("メールアドレスの重複確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailInUseError()
	}

	now := time.Now()
	token := uuid.New().String()
	userID := uuid.New().String()
	hash := s.hasher.Hash(userID, password)
	user := &model.User{
		ID:           userID,
		Email:        email,
		PasswordHash: &hash,
		Verified:     false,
		Verification: &token,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	if s.defaults != nil {
		if err := s.defaults.CreateDefaults(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("初期購読の作成に失敗しました: %w", err)
		}
	}

	verifyURL := fmt.Sprintf("%s/activate?token=%s", strings.TrimRight(s.baseURL, "/"), token)
	if err := s.mailer.SendVerification(ctx, user.Email, verifyURL); err != nil {
		return nil, fmt.Errorf("確認メールの送信に失敗しました: %w", err)
	}

	if s.notifier != nil {
		s.notifier.OnSignup(ctx, user.ID, user.Email)
	}
	return user, nil
}

// FindOrCreate はメールアドレスに一致する既存ユーザーを返すか、
// パスワードなしの検証済みアカウントを新規作成する。この経路では
// 未検証アカウントは決して作られない。
func (s *Service) FindOrCreate(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailPattern.MatchString(email) {
		return nil, model.NewValidationError("E-mail address is invalid.")
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Verified:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	if err := s.mailer.SendWelcome(ctx, user.Email); err != nil {
		return nil, fmt.Errorf("ウェルカムメールの送信に失敗しました: %w", err)
	}
	return user, nil
}

// ActivateByToken は本人確認トークンでアカウントを有効化する。
// verified=trueの設定とトークンのクリアは単一の更新で行われる。
func (s *Service) ActivateByToken(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, model.NewUserNotFoundError()
	}
	user, err := s.userRepo.FindByVerificationToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("トークンによるユーザー検索に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if err := s.userRepo.Activate(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("アカウントの有効化に失敗しました: %w", err)
	}
	user.Verified = true
	user.Verification = nil

	if s.notifier != nil {
		s.notifier.OnActivate(ctx, user.ID)
	}
	return user, nil
}

// Authenticate はメールアドレスとパスワードでユーザーを認証する。
// 未検証ユーザー・存在しないユーザー・パスワード不一致のいずれも
// 同一のCredentialMismatchを返す。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.FindVerifiedByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if user == nil || user.PasswordHash == nil {
		return nil, model.NewCredentialMismatchError()
	}
	if !s.hasher.Verify(user.ID, password, *user.PasswordHash) {
		return nil, model.NewCredentialMismatchError()
	}
	return user, nil
}

// Login は認証に成功したユーザーへ新しいセッションを発行する。
func (s *Service) Login(ctx context.Context, email, password string) (*model.User, *model.Session, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	session := &model.Session{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.sessionMaxAge),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}
	return user, session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteAccount はアカウントと関連状態を削除する。セッションの破棄、
// 購読チャンネルごとの購読者数減算、購読レコードとユーザー行の削除、
// 削除通知の順に実行する。減算ループ内の失敗はログに残して続行し、
// 残りのチャンネルの処理を妨げない。
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	subs, err := s.subscriptionRepo.ListByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}
	for _, sub := range subs {
		if err := s.counter.DecrementSubscribers(ctx, sub.ChannelID); err != nil {
			s.logger.WarnContext(ctx, "subscriber decrement failed during account deletion",
				slog.String("user_id", userID),
				slog.String("channel_id", sub.ChannelID),
				slog.Any("error", err),
			)
		}
	}

	if err := s.subscriptionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("購読の削除に失敗しました: %w", err)
	}
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	if s.notifier != nil {
		s.notifier.OnAccountDelete(ctx, userID)
	}
	return nil
}

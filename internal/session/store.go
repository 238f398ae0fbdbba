// Package session は現在の認証済みユーザーとbearer資格情報を管理するSession Storeを提供する。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/nadeguide/internal/model"
	"github.com/hitoshi/nadeguide/internal/observable"
	"github.com/hitoshi/nadeguide/internal/platform"
)

// CredentialKey はbearer資格情報を保存する永続ストレージのキー。
const CredentialKey = "jwt"

// errCredentialExpired はJWTのexpが過去であることを表す。
var errCredentialExpired = errors.New("credential expired")

// ProfileFetcher はbearer資格情報で現在のプロフィールを取得する。
// strapi.Clientが実装する。
type ProfileFetcher interface {
	Me(ctx context.Context, jwt string) (*model.User, error)
}

// InitResult はInitの結果種別。メトリクスとログに使用する。
type InitResult string

const (
	InitNoStorage    InitResult = "no_storage"
	InitNoCredential InitResult = "no_credential"
	InitRestored     InitResult = "restored"
	InitRejected     InitResult = "rejected"
	// InitStorageError は資格情報の読み取りに失敗したことを表す。
	InitStorageError InitResult = "storage_error"
)

// Store はSession Store。
// ユーザーの変更はすべて購読者へ同期的に通知される。
type Store struct {
	user    *observable.Value[*model.User]
	caps    platform.Capabilities
	profile ProfileFetcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore はセッションなしの状態でStoreを生成する。
func NewStore(caps platform.Capabilities, profile ProfileFetcher, logger *slog.Logger) *Store {
	return &Store{
		user:    observable.New[*model.User](nil),
		caps:    caps,
		profile: profile,
		logger:  logger,
		now:     time.Now,
	}
}

// Init は永続化された資格情報を検証し、セッションを復元する。
// 失敗はすべて「セッションなし」として反映され、エラーは返さない。
func (s *Store) Init(ctx context.Context) InitResult {
	storage, ok := s.caps.DurableStorage()
	if !ok {
		s.user.Set(nil)
		return InitNoStorage
	}

	token, ok, err := storage.Get(ctx, CredentialKey)
	if err != nil {
		s.logger.Error("failed to read credential", slog.String("error", err.Error()))
		// 読めない資格情報は検証できないため削除を試みる
		if rmErr := storage.Remove(ctx, CredentialKey); rmErr != nil {
			s.logger.Error("failed to remove credential", slog.String("error", rmErr.Error()))
		}
		s.user.Set(nil)
		return InitStorageError
	}
	if !ok || token == "" {
		s.user.Set(nil)
		return InitNoCredential
	}

	user, err := s.validate(ctx, token)
	if err != nil {
		s.logger.Warn("error initializing user", slog.String("error", err.Error()))
		if rmErr := storage.Remove(ctx, CredentialKey); rmErr != nil {
			s.logger.Error("failed to remove credential", slog.String("error", rmErr.Error()))
		}
		s.user.Set(nil)
		return InitRejected
	}

	s.user.Set(user)
	return InitRestored
}

// validate は資格情報をバックエンドに問い合わせて検証する。
// JWTとして解釈でき、expが過去の場合は問い合わせずに失効として扱う。
func (s *Store) validate(ctx context.Context, token string) (*model.User, error) {
	if expired(token, s.now()) {
		return nil, errCredentialExpired
	}

	user, err := s.profile.Me(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("empty profile response")
	}
	return user, nil
}

// Login は資格情報を永続化し、userを現在のセッションとして設定する。
// 資格情報の検証は行わない（呼び出し元がサーバー側で検証済みであること）。
// 永続化に失敗した場合はセッションを変更せずにエラーを返す。
func (s *Store) Login(ctx context.Context, user model.User, token string) error {
	if storage, ok := s.caps.DurableStorage(); ok {
		if err := storage.Set(ctx, CredentialKey, token); err != nil {
			return fmt.Errorf("failed to persist credential: %w", err)
		}
	}

	s.user.Set(&user)
	s.logger.Info("user logged in",
		slog.Int("user_id", user.ID),
		slog.String("steam_id", user.SteamID),
	)
	return nil
}

// Logout は資格情報を削除し、セッションをなしにする。
// 削除に失敗してもセッションはクリアし、エラーを返す。
func (s *Store) Logout(ctx context.Context) error {
	var err error
	if storage, ok := s.caps.DurableStorage(); ok {
		if rmErr := storage.Remove(ctx, CredentialKey); rmErr != nil {
			err = fmt.Errorf("failed to remove credential: %w", rmErr)
		}
	}

	s.user.Set(nil)
	return err
}

// Current は現在のユーザーを返す。セッションがない場合はnil。
func (s *Store) Current() *model.User {
	return s.user.Get()
}

// Credential は永続化されている資格情報を返す。
func (s *Store) Credential(ctx context.Context) (string, bool) {
	storage, ok := s.caps.DurableStorage()
	if !ok {
		return "", false
	}
	token, ok, err := storage.Get(ctx, CredentialKey)
	if err != nil || !ok {
		return "", false
	}
	return token, true
}

// Subscribe はユーザーの変更を購読する。
func (s *Store) Subscribe(fn func(*model.User)) func() {
	return s.user.Subscribe(fn)
}

// expired はtokenがJWTとして解釈でき、かつexpがnowより前の場合にtrueを返す。
// 署名は検証しない。不透明トークンやexpを持たないJWTはfalseを返す。
func expired(token string, now time.Time) bool {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.Time.After(now)
}

package otherwise

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser stores a new admin account.
func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash string) (User, error) {
	u := User{Email: normalizeEmail(email), Name: strings.TrimSpace(name), PasswordHash: passwordHash}
	err := s.db.WithContext(ctx).Create(&u).Error
	if isUniqueViolation(err) {
		return User{}, ErrDuplicateEmail
	}
	if err != nil {
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUserByEmail looks a user up by (case-insensitive) email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// ListUsers returns every admin account ordered by email.
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	users := []User{}
	if err := s.db.WithContext(ctx).Order("email").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// DeleteUser removes the account with email and, by cascade, its sessions.
func (s *Store) DeleteUser(ctx context.Context, email string) error {
	res := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).Delete(&User{})
	if res.Error != nil {
		return fmt.Errorf("delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSession stores a session row.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	if err := s.db.WithContext(ctx).Omit("User").Create(sess).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSessionByTokenHash returns the unexpired session with tokenHash, with
// its user loaded.
func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string, now time.Time) (Session, error) {
	var sess Session
	err := s.db.WithContext(ctx).Preload("User").
		Where("token_hash = ? AND expires_at > ?", tokenHash, now.UTC()).
		Take(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// DeleteSessionByTokenHash removes a session. Missing sessions are not an error.
func (s *Store) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	if err := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Delete(&Session{}).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions purges sessions that expired before now and returns
// how many were removed.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// StartSessionCleanup purges expired sessions every interval until the
// returned stop function is called.
func (s *Store) StartSessionCleanup(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				n, err := s.DeleteExpiredSessions(context.Background(), time.Now())
				if err != nil {
					s.logger.Errorf("session cleanup: %v", err)
				} else if n > 0 {
					s.logger.Infof("session cleanup: removed %d expired sessions", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}

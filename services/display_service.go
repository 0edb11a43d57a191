package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hospital-queue/internal/status"
	"hospital-queue/utils"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const displayCodeTTL = 24 * time.Hour

// DisplayService manages access codes for the public waiting-room token
// boards. Staff issue a code per doctor; the board presents it to read
// the queue without a user account. Only the bcrypt hash is stored.
type DisplayService struct {
	Redis *redis.Client
}

func NewDisplayService(redisClient *redis.Client) *DisplayService {
	return &DisplayService{Redis: redisClient}
}

func displayCodeKey(doctorID string) string {
	return fmt.Sprintf("display:code:%s", doctorID)
}

// IssueCode generates and stores a fresh board code for the doctor,
// replacing any previous one.
func (s *DisplayService) IssueCode(ctx context.Context, doctorID string) (string, error) {
	code, err := utils.GenerateCode(4)
	if err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	if err := s.Redis.Set(ctx, displayCodeKey(doctorID), string(hash), displayCodeTTL).Err(); err != nil {
		return "", err
	}
	return code, nil
}

// VerifyCode checks a presented board code against the stored hash.
func (s *DisplayService) VerifyCode(ctx context.Context, doctorID, code string) error {
	hash, err := s.Redis.Get(ctx, displayCodeKey(doctorID)).Result()
	if errors.Is(err, redis.Nil) {
		return status.ErrForbidden
	}
	if err != nil {
		return err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		return status.ErrForbidden
	}
	return nil
}

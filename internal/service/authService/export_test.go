package authService

import (
	"time"

	"dataroom-service/internal/repository/BlackListRepo"

	"github.com/google/uuid"
)

func (s *AuthService) GenerateJWT(userID uuid.UUID, expiresAt time.Time) (string, error) {
	return s.generateJWT(userID, expiresAt)
}

func (s *AuthService) BlacklistRepo() *BlackListRepo.BlackListRepo {
	return s.blacklistRepo
}

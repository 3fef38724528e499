package services

import (
	"context"

	"helpnet/models"
	"helpnet/repositories"
	"helpnet/utils"
)

// AuthService verifies callers. Token issuance belongs to the external
// identity service; this side only validates tokens and loads the identity
// projection behind them.
type AuthService struct {
	userRepo   repositories.UserRepository
	jwtService *utils.JWTService
}

func NewAuthService(userRepo repositories.UserRepository, jwtService *utils.JWTService) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		jwtService: jwtService,
	}
}

// Authenticate validates the token and returns the active user behind it.
// Inactive and blocked accounts are rejected even with a valid token.
func (as *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := as.jwtService.ValidateToken(token)
	if err != nil {
		return nil, utils.NewUnauthorizedError("Invalid or expired token")
	}

	user, err := as.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, utils.NewUnauthorizedError("Unknown user")
	}
	if !user.IsActive || user.IsBlocked {
		return nil, utils.NewForbiddenError("Account is not allowed to participate")
	}

	return user, nil
}

// GetUser loads a user by id.
func (as *AuthService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return as.userRepo.GetByID(ctx, userID)
}

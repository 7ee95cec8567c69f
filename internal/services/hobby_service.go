package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ridematch/internal/database"
	"ridematch/internal/models"
)

type HobbyService struct {
	hobbies database.HobbyRepository
}

func NewHobbyService(hobbies database.HobbyRepository) *HobbyService {
	return &HobbyService{hobbies: hobbies}
}

func (s *HobbyService) ListHobbies(ctx context.Context) ([]models.Hobby, error) {
	return s.hobbies.ListHobbies(ctx)
}

func (s *HobbyService) CreateHobby(ctx context.Context, req *models.CreateHobbyRequest) (*models.Hobby, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: hobby name is required", models.ErrInvalidInput)
	}

	hobby, err := s.hobbies.CreateHobby(ctx, name, req.Description)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("%w: hobby %q already exists", models.ErrConflict, name)
		}
		return nil, err
	}
	return hobby, nil
}

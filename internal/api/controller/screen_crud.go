package controller

import (
	"context"
	"strings"

	"github.com/bassista/go_chatwall/internal/cache"
	"github.com/bassista/go_chatwall/internal/directory"
	"github.com/bassista/go_chatwall/internal/repository"
	"github.com/go-playground/validator/v10"
)

// ScreenCrudService implements CrudService for screens.
type ScreenCrudService struct {
	Store     cache.ScreenStore
	Directory directory.ChatDirectory
}

func (s *ScreenCrudService) All(_ context.Context) ([]repository.ScreenState, error) {
	return s.Store.All(), nil
}

// Add creates a screen. A primary link in the payload is checked against
// the directory first.
func (s *ScreenCrudService) Add(ctx context.Context, item repository.ScreenState) (repository.ScreenState, error) {
	if item.GuildID != "" && item.ChannelID != "" {
		if _, err := directory.ValidateLink(ctx, s.Directory, item.GuildID, item.ChannelID); err != nil {
			return repository.ScreenState{}, err
		}
	}
	return s.Store.CreateScreen(cache.NewScreen{
		Width:     item.Width,
		Height:    item.Height,
		GuildID:   item.GuildID,
		ChannelID: item.ChannelID,
		Placement: item.Placement,
	})
}

func (s *ScreenCrudService) Remove(_ context.Context, id string) ([]repository.ScreenState, error) {
	if err := s.Store.RemoveScreen(id); err != nil {
		return nil, err
	}
	return s.Store.All(), nil
}

// ScreenCrudValidator implements CrudValidator for screens. The id is
// assigned by the store, so it is not required on create.
type ScreenCrudValidator struct {
	validator *validator.Validate
}

func (v *ScreenCrudValidator) Validate(item repository.ScreenState) error {
	item.Placement.Facing = strings.ToLower(item.Placement.Facing)
	return v.validator.StructExcept(item, "ID")
}

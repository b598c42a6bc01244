package repositories

import (
	"github.com/postflow-ai/postflow/internal/domain/models"
	"gorm.io/gorm"
)

type AccountRepository struct {
	*BaseRepository[models.SocialAccount]
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{
		BaseRepository: NewBaseRepository[models.SocialAccount](db),
	}
}

package repositories

import (
	"github.com/postflow-ai/postflow/internal/domain/models"
	"gorm.io/gorm"
)

type ContentRepository struct {
	*BaseRepository[models.Content]
}

func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{
		BaseRepository: NewBaseRepository[models.Content](db),
	}
}

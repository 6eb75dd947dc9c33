package model

import (
	"context"
	"fmt"
	"time"

	"github.com/5566cannotdead/OSSRanking/cfg"
	"github.com/5566cannotdead/OSSRanking/pkg/db"
	"github.com/5566cannotdead/OSSRanking/pkg/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Model struct {
	Config *cfg.Config `gorm:"-" json:"-"`
	Logger log.Logger  `gorm:"-" json:"-"`
	Mysql  *db.Mysql   `gorm:"-" json:"-"`
}

// Developer is the MySQL archive row for a discovered developer. The Kafka
// consumer upserts these so the archive can lag behind the JSON result file
// without losing identity.
type Developer struct {
	Model
	ID          int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	Login       string    `json:"login" gorm:"column:login;type:varchar(255);not null"`
	Name        string    `json:"name" gorm:"column:name;type:varchar(255)"`
	Location    string    `json:"location" gorm:"column:location;type:varchar(255)"`
	Followers   int       `json:"followers" gorm:"column:followers;default:0"`
	PublicRepos int       `json:"public_repos" gorm:"column:public_repos;default:0"`
	TotalStars  int       `json:"total_stars" gorm:"column:total_stars;default:0"`
	TotalForks  int       `json:"total_forks" gorm:"column:total_forks;default:0"`
	Score       float64   `json:"score" gorm:"column:score;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

func NewDeveloper(config *cfg.Config, logger log.Logger, mysql *db.Mysql) (*Developer, error) {
	return &Developer{
		Model: Model{
			Config: config,
			Logger: logger,
			Mysql:  mysql,
		},
	}, nil
}

func (d *Developer) TableName() string {
	return "developers"
}

// FromUser maps a crawled User onto an archive row.
func FromUser(u *User) Developer {
	now := time.Now()
	return Developer{
		ID:          u.ID,
		Login:       TruncateString(u.Login, 250),
		Name:        TruncateString(u.Name, 250),
		Location:    TruncateString(u.Location, 250),
		Followers:   u.Followers,
		PublicRepos: u.PublicRepos,
		TotalStars:  u.TotalStars,
		TotalForks:  u.TotalForks,
		Score:       u.Score,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Upsert writes a single developer row, replacing mutable columns on conflict.
func (d *Developer) Upsert(user *User) error {
	ctx := context.Background()

	db, err := d.Mysql.Db()
	if err != nil {
		d.Logger.Error(ctx, "Failed to get database connection: %v", err)
		return err
	}

	row := FromUser(user)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"login", "name", "location", "followers", "public_repos", "total_stars", "total_forks", "score", "updated_at"}),
	}).Create(&row).Error; err != nil {
		d.Logger.Error(ctx, "Failed to upsert developer %s: %v", user.Login, err)
		return err
	}

	return nil
}

// UpsertBatch writes a batch of developer rows in one transaction.
func (d *Developer) UpsertBatch(users []User) error {
	db, err := d.Mysql.Db()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	rows := make([]Developer, 0, len(users))
	for i := range users {
		rows = append(rows, FromUser(&users[i]))
	}

	return db.Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"login", "name", "location", "followers", "public_repos", "total_stars", "total_forks", "score", "updated_at"}),
		}).CreateInBatches(rows, 100)

		if result.Error != nil {
			return fmt.Errorf("failed to batch upsert developers: %w", result.Error)
		}

		return nil
	})
}

// Package sqlitekv is the durable kvstore.Store adapter backed by
// SQLite through GORM, grounded in the teacher library's
// pkg/database/sql/adapters/sqlite adapter: same gorm.Open/gorm.DB
// shape, same errors.Wrap-on-failure convention.
package sqlitekv

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chris-alexander-pop/lamport-broker/pkg/errors"
)

// topicRow is the single logical table topics(topic PRIMARY KEY,
// latest_message) from spec.md §6.
type topicRow struct {
	Topic         string `gorm:"primaryKey;column:topic"`
	LatestMessage string `gorm:"column:latest_message"`
}

func (topicRow) TableName() string { return "topics" }

// Adapter implements kvstore.Store over a SQLite file.
type Adapter struct {
	db *gorm.DB
}

// New opens (creating if necessary) the SQLite file at path and
// migrates the topics table.
func New(path string) (*Adapter, error) {
	if path == "" {
		path = "broker.db"
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite kv store")
	}
	if err := db.AutoMigrate(&topicRow{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate topics table")
	}
	return &Adapter{db: db}, nil
}

// Upsert implements kvstore.Store.
func (a *Adapter) Upsert(topic, message string) error {
	row := topicRow{Topic: topic, LatestMessage: message}
	err := a.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "topic"}},
		DoUpdates: clause.AssignmentColumns([]string{"latest_message"}),
	}).Create(&row).Error
	if err != nil {
		return errors.Wrap(err, "failed to upsert topic row")
	}
	return nil
}

// Lookup implements kvstore.Store.
func (a *Adapter) Lookup(topic string) (string, bool, error) {
	var row topicRow
	err := a.db.Where("topic = ?", topic).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "failed to look up topic row")
	}
	return row.LatestMessage, true, nil
}

// Close implements kvstore.Store.
func (a *Adapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying sql.DB")
	}
	return sqlDB.Close()
}
